package prompt

import (
	"bytes"
	"fmt"
	"strings"

	llmclient "deepbuild/internal/llmClient"
	"deepbuild/internal/types"
	"deepbuild/internal/util/jsonutil"
)

// BriefMessages builds the conversation for transition 1.
func BriefMessages(description string) []llmclient.Message {
	user := fmt.Sprintf("Create a project brief for a %s. Include implementation details and file structure.",
		strings.TrimSpace(description))
	return []llmclient.Message{
		llmclient.System(BriefSystem),
		llmclient.User(user),
	}
}

// ImplementationMessages builds the per-file conversation. Answers are listed
// in question order; a question text that repeats is listed once.
func ImplementationMessages(brief types.Brief, answers map[string]string, file types.FileEntry) ([]llmclient.Message, error) {
	doc, err := jsonutil.MarshalNoEscapeIndent(brief, "  ")
	if err != nil {
		return nil, fmt.Errorf("prompt: encode brief: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("Based on this project brief: ")
	buf.Write(doc)
	buf.WriteString("\n\nAdditional context from clarifying questions:\n")
	seen := make(map[string]struct{}, len(brief.Questions))
	pairs := make([]string, 0, len(brief.Questions))
	for _, q := range brief.Questions {
		if _, dup := seen[q.Text]; dup {
			continue
		}
		seen[q.Text] = struct{}{}
		a, ok := answers[q.Text]
		if !ok {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("Q: %s\nA: %s", q.Text, a))
	}
	buf.WriteString(strings.Join(pairs, "\n\n"))
	fmt.Fprintf(&buf, "\n\nPlease provide the complete implementation for the file: %s\nPurpose: %s", file.Path, file.Purpose)
	return []llmclient.Message{
		llmclient.System(ImplementationSystem),
		llmclient.User(buf.String()),
	}, nil
}
