package payload

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepbuild/internal/llm"
	llmclient "deepbuild/internal/llmClient"
	"deepbuild/internal/types"
)

const briefDoc = `{
  "project_brief": {
    "app_summary": {"name": "Todo CLI", "purpose": "track todos", "main_features": ["add", "list"]},
    "technical_outline": {
      "tech_stack": ["TypeScript"],
      "external_dependencies": [],
      "basic_structure": {"files": [
        {"file": "todo.ts", "purpose": "entry point"},
        {"file": "README.md", "purpose": "docs"}
      ]}
    },
    "implementation_notes": {"starting_point": "todo.ts", "key_considerations": [], "potential_challenges": []}
  },
  "clarifying_questions": [
    {"question": "Where should todos be stored?", "why_needed": "persistence"}
  ]
}`

const implDoc = `{
  "thought_process": {"problem_analysis": "a", "solution_approach": "b", "implementation_plan": "c", "potential_issues": "d"},
  "assistant_reply": "here it is",
  "files_to_create": [{"path": "todo.ts", "content": "console.log(1)", "purpose": "entry"}],
  "files_to_edit": []
}`

func wrap(doc string) string {
	return "Sure, here is the plan.\n" + OpenMarker + "\n" + doc + "\n" + CloseMarker + "\nAnything else?"
}

func convo() []llmclient.Message {
	return []llmclient.Message{llmclient.System("sys"), llmclient.User("make a todo app")}
}

func TestParseWellFormedBrief(t *testing.T) {
	p := &Parser{}
	res, err := p.Parse(context.Background(), convo(), wrap(briefDoc), KindBrief)
	require.NoError(t, err)
	require.NotNil(t, res.Brief)

	var direct types.Brief
	require.NoError(t, json.Unmarshal([]byte(briefDoc), &direct))
	assert.Equal(t, direct, *res.Brief)
	assert.Equal(t, 0, res.Continuations)
	assert.Equal(t, "todo.ts", res.Brief.Files()[0].Path)
}

func TestParseWellFormedImplementation(t *testing.T) {
	p := &Parser{}
	res, err := p.Parse(context.Background(), nil, wrap(implDoc), KindImplementation)
	require.NoError(t, err)
	require.NotNil(t, res.Implementation)
	f, ok := res.Implementation.CreatedFile("todo.ts")
	require.True(t, ok)
	assert.Equal(t, "console.log(1)", f.Content)
	assert.Empty(t, res.Implementation.FilesToEdit)
}

func TestParseContinuationSucceeds(t *testing.T) {
	// Cut at a structural boundary so the joining line break is harmless.
	cut := strings.Index(implDoc, `"files_to_create"`)
	first := OpenMarker + implDoc[:cut]
	fake := llm.NewFakeClient(
		llm.FakeReply{Text: implDoc[cut:cut+20]},
		llm.FakeReply{Text: implDoc[cut+20:] + CloseMarker},
	)
	p := &Parser{Client: fake, MaxContinuations: 3}
	in := convo()
	res, err := p.Parse(context.Background(), in, first, KindImplementation)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Continuations)
	assert.Equal(t, "here it is", res.Implementation.AssistantReply)
	assert.Len(t, in, 2, "caller conversation must not be modified")

	calls := fake.Calls()
	require.Len(t, calls, 2)
	msgs := calls[0].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, llmclient.RoleAssistant, msgs[2].Role)
	assert.Equal(t, first, msgs[2].Content)
	assert.Equal(t, ContinuationInstruction, msgs[3].Content)
	assert.Equal(t, llm.PhaseContinuation, calls[0].Phase)
	// The second round carries the accumulated text.
	assert.Equal(t, first+"\n"+implDoc[cut:cut+20], calls[1].Messages[2].Content)
}

func TestParseContinuationMidString(t *testing.T) {
	// Cut inside a string value: the newline join breaks the JSON, the raw
	// concatenation does not.
	cut := strings.Index(implDoc, "here it") + 4
	fake := llm.NewFakeClient(llm.FakeReply{Text: implDoc[cut:] + CloseMarker})
	p := &Parser{Client: fake}
	res, err := p.Parse(context.Background(), nil, OpenMarker+implDoc[:cut], KindImplementation)
	require.NoError(t, err)
	assert.Equal(t, "here it is", res.Implementation.AssistantReply)
}

func TestParseContinuationBoundExceeded(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Respond = func(llm.FakeCall) (string, error) { return `"more": 1,`, nil }
	p := &Parser{Client: fake, MaxContinuations: 2}
	_, err := p.Parse(context.Background(), nil, OpenMarker+`{"a":`, KindImplementation)
	require.Error(t, err)
	assert.True(t, IsKind(err, Unterminated))
	assert.Len(t, fake.Calls(), 2)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Continuations)
}

func TestParseContinuationDisabled(t *testing.T) {
	fake := llm.NewFakeClient()
	p := &Parser{Client: fake, MaxContinuations: -1}
	_, err := p.Parse(context.Background(), nil, OpenMarker+"{", KindBrief)
	assert.True(t, IsKind(err, Unterminated))
	assert.Empty(t, fake.Calls())
}

func TestParseContinuationModelError(t *testing.T) {
	boom := &llmclient.NetworkError{Provider: "fake", Err: errors.New("reset")}
	fake := llm.NewFakeClient(llm.FakeReply{Err: boom})
	p := &Parser{Client: fake}
	_, err := p.Parse(context.Background(), nil, OpenMarker+"{", KindBrief)
	var ne *llmclient.NetworkError
	assert.True(t, errors.As(err, &ne))
}

func TestParseNoMarkers(t *testing.T) {
	p := &Parser{}
	res, err := p.Parse(context.Background(), nil, briefDoc, KindBrief)
	require.NoError(t, err)
	assert.Equal(t, "Todo CLI", res.Brief.Name())

	_, err = p.Parse(context.Background(), nil, "I cannot help with that.", KindBrief)
	assert.True(t, IsKind(err, NoPayload))
}

func TestParseFencedInsideMarkers(t *testing.T) {
	p := &Parser{}
	raw := OpenMarker + "\n```json\n" + implDoc + "\n```\n" + CloseMarker
	_, err := p.Parse(context.Background(), nil, raw, KindImplementation)
	assert.NoError(t, err)
}

func TestParseInvalidEncoding(t *testing.T) {
	p := &Parser{}
	_, err := p.Parse(context.Background(), nil, OpenMarker+`{"thought_process": }`+CloseMarker, KindImplementation)
	assert.True(t, IsKind(err, InvalidEncoding))
	_, err = p.Parse(context.Background(), nil, OpenMarker+CloseMarker, KindImplementation)
	assert.True(t, IsKind(err, InvalidEncoding))
}

func TestParseSchemaMismatch(t *testing.T) {
	cases := map[string]struct {
		doc  string
		kind ReplyKind
	}{
		"brief without files":          {`{"project_brief":{"technical_outline":{"basic_structure":{"files":[]}}}}`, KindBrief},
		"brief wrong nesting":          {`{"files":[{"file":"a"}]}`, KindBrief},
		"brief file without path":      {`{"project_brief":{"technical_outline":{"basic_structure":{"files":[{"purpose":"x"}]}}}}`, KindBrief},
		"impl missing thought key":     {`{"thought_process":{"problem_analysis":"a"},"assistant_reply":"","files_to_create":[],"files_to_edit":[]}`, KindImplementation},
		"impl reply not string":        {`{"thought_process":{"problem_analysis":"a","solution_approach":"b","implementation_plan":"c","potential_issues":"d"},"assistant_reply":3,"files_to_create":[],"files_to_edit":[]}`, KindImplementation},
		"impl files_to_edit not list":  {`{"thought_process":{"problem_analysis":"a","solution_approach":"b","implementation_plan":"c","potential_issues":"d"},"assistant_reply":"","files_to_create":[],"files_to_edit":{}}`, KindImplementation},
		"impl create content not text": {`{"thought_process":{"problem_analysis":"a","solution_approach":"b","implementation_plan":"c","potential_issues":"d"},"assistant_reply":"","files_to_create":[{"path":"a","content":1}],"files_to_edit":[]}`, KindImplementation},
	}
	p := &Parser{}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Parse(context.Background(), nil, wrap(tc.doc), tc.kind)
			require.Error(t, err)
			var pe *Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, SchemaMismatch, pe.Kind)
			assert.NotNil(t, pe.Decoded)
			assert.NotEmpty(t, pe.Reason)
		})
	}
}

func TestParseClosingMarkerOnly(t *testing.T) {
	p := &Parser{}
	_, err := p.Parse(context.Background(), nil, implDoc+CloseMarker, KindImplementation)
	assert.NoError(t, err)
}
