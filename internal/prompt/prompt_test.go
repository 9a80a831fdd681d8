package prompt

import (
	"strings"
	"testing"

	llmclient "deepbuild/internal/llmClient"
	"deepbuild/internal/types"
)

func TestBriefMessages(t *testing.T) {
	msgs := BriefMessages("  a todo list CLI ")
	if len(msgs) != 2 || msgs[0].Role != llmclient.RoleSystem || msgs[0].Content != BriefSystem {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	want := "Create a project brief for a a todo list CLI. Include implementation details and file structure."
	if msgs[1].Content != want {
		t.Fatalf("user prompt = %q", msgs[1].Content)
	}
}

func TestImplementationMessages(t *testing.T) {
	brief := types.Brief{
		Project: types.ProjectBrief{AppSummary: types.AppSummary{Name: "Todo <CLI>"}},
		Questions: []types.Question{
			{Text: "Storage?"},
			{Text: "Colors?"},
			{Text: "Storage?"},
			{Text: "Unanswered?"},
		},
	}
	answers := map[string]string{"Storage?": "json file", "Colors?": "no"}
	msgs, err := ImplementationMessages(brief, answers, types.FileEntry{Path: "todo.ts", Purpose: "entry"})
	if err != nil {
		t.Fatalf("ImplementationMessages: %v", err)
	}
	user := msgs[1].Content
	if !strings.HasPrefix(user, "Based on this project brief: {") {
		t.Fatalf("prefix: %q", user[:40])
	}
	if !strings.Contains(user, "Todo <CLI>") {
		t.Fatal("brief JSON must not be HTML-escaped")
	}
	qa := "Additional context from clarifying questions:\nQ: Storage?\nA: json file\n\nQ: Colors?\nA: no\n\nPlease"
	if !strings.Contains(user, qa) {
		t.Fatalf("Q&A block missing or out of order:\n%s", user)
	}
	if !strings.HasSuffix(user, "Please provide the complete implementation for the file: todo.ts\nPurpose: entry") {
		t.Fatalf("suffix: %q", user)
	}
}

func TestOverviewAndQuestions(t *testing.T) {
	var b types.Brief
	b.Project.AppSummary.Purpose = "track todos"
	b.Project.AppSummary.MainFeatures = []string{"add", "list"}
	b.Project.TechnicalOutline.TechStack = []string{"TypeScript", "Node"}
	out := Overview(b)
	for _, want := range []string{"# Project Brief Overview", "**Purpose:** track todos", "- add\n- list", "Technologies: TypeScript, Node"} {
		if !strings.Contains(out, want) {
			t.Fatalf("overview missing %q:\n%s", want, out)
		}
	}
	q := types.Question{Text: "Storage?", WhyNeeded: "persistence"}
	if got := NextQuestion(q); got != "Thanks! Next question:\n\nStorage?\n\nWhy I ask: persistence" {
		t.Fatalf("NextQuestion = %q", got)
	}
}
