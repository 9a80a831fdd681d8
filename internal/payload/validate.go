package payload

import (
	"encoding/json"
	"errors"
	"fmt"

	"deepbuild/internal/types"
	"deepbuild/internal/util/jsonutil"
)

var errEmptyDocument = errors.New("empty document")

func decode(body string) (map[string]any, error) {
	if body == "" {
		return nil, errEmptyDocument
	}
	var doc map[string]any
	if err := jsonutil.UnmarshalFlex([]byte(body), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("document is not an object")
	}
	return doc, nil
}

// validate checks the decoded document's shape and converts it to the typed
// payload. It never returns a partially-typed value.
func validate(doc map[string]any, kind ReplyKind) (Result, *Error) {
	switch kind {
	case KindBrief:
		if reason := checkBrief(doc); reason != "" {
			return Result{}, mismatch(doc, reason)
		}
		var b types.Brief
		if err := convert(doc, &b); err != nil {
			return Result{}, &Error{Kind: SchemaMismatch, Decoded: doc, Err: err}
		}
		return Result{Kind: kind, Brief: &b}, nil
	case KindImplementation:
		if reason := checkImplementation(doc); reason != "" {
			return Result{}, mismatch(doc, reason)
		}
		var impl types.ImplementationPayload
		if err := convert(doc, &impl); err != nil {
			return Result{}, &Error{Kind: SchemaMismatch, Decoded: doc, Err: err}
		}
		return Result{Kind: kind, Implementation: &impl}, nil
	}
	return Result{}, mismatch(doc, fmt.Sprintf("unknown reply kind %d", kind))
}

func mismatch(doc map[string]any, reason string) *Error {
	return &Error{Kind: SchemaMismatch, Reason: reason, Decoded: doc}
}

func convert(doc map[string]any, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func checkBrief(doc map[string]any) string {
	pb, ok := doc["project_brief"].(map[string]any)
	if !ok {
		return "project_brief must be an object"
	}
	to, ok := pb["technical_outline"].(map[string]any)
	if !ok {
		return "project_brief.technical_outline must be an object"
	}
	bs, ok := to["basic_structure"].(map[string]any)
	if !ok {
		return "technical_outline.basic_structure must be an object"
	}
	files, ok := bs["files"].([]any)
	if !ok {
		return "basic_structure.files must be a list"
	}
	if len(files) == 0 {
		return "basic_structure.files is empty"
	}
	for i, f := range files {
		entry, ok := f.(map[string]any)
		if !ok {
			return fmt.Sprintf("basic_structure.files[%d] must be an object", i)
		}
		if s, ok := entry["file"].(string); !ok || s == "" {
			return fmt.Sprintf("basic_structure.files[%d].file must be a non-empty string", i)
		}
		if v, present := entry["purpose"]; present {
			if _, ok := v.(string); !ok {
				return fmt.Sprintf("basic_structure.files[%d].purpose must be a string", i)
			}
		}
	}
	if v, present := doc["clarifying_questions"]; present && v != nil {
		qs, ok := v.([]any)
		if !ok {
			return "clarifying_questions must be a list"
		}
		for i, q := range qs {
			entry, ok := q.(map[string]any)
			if !ok {
				return fmt.Sprintf("clarifying_questions[%d] must be an object", i)
			}
			if _, ok := entry["question"].(string); !ok {
				return fmt.Sprintf("clarifying_questions[%d].question must be a string", i)
			}
		}
	}
	return ""
}

var thoughtKeys = []string{"problem_analysis", "solution_approach", "implementation_plan", "potential_issues"}

func checkImplementation(doc map[string]any) string {
	tp, ok := doc["thought_process"].(map[string]any)
	if !ok {
		return "thought_process must be an object"
	}
	for _, k := range thoughtKeys {
		if _, present := tp[k]; !present {
			return "thought_process." + k + " is missing"
		}
	}
	if _, ok := doc["assistant_reply"].(string); !ok {
		return "assistant_reply must be a string"
	}
	creates, ok := doc["files_to_create"].([]any)
	if !ok {
		return "files_to_create must be a list"
	}
	for i, c := range creates {
		if reason := checkStrings(c, "files_to_create", i, "path", "content"); reason != "" {
			return reason
		}
	}
	edits, ok := doc["files_to_edit"].([]any)
	if !ok {
		return "files_to_edit must be a list"
	}
	for i, e := range edits {
		if reason := checkStrings(e, "files_to_edit", i, "path", "new_snippet"); reason != "" {
			return reason
		}
	}
	return ""
}

func checkStrings(v any, list string, i int, keys ...string) string {
	entry, ok := v.(map[string]any)
	if !ok {
		return fmt.Sprintf("%s[%d] must be an object", list, i)
	}
	for _, k := range keys {
		if _, ok := entry[k].(string); !ok {
			return fmt.Sprintf("%s[%d].%s must be a string", list, i, k)
		}
	}
	return ""
}
