package jsonutil

import (
	"bytes"
	"encoding/json"
	"strings"
)

// UnmarshalFlex decodes model-produced JSON with best effort:
//  1. direct unmarshal
//  2. strip a surrounding markdown code fence and retry
//  3. unwrap a document that was itself encoded as a JSON string
//
// The error of the first attempt is returned when every attempt fails.
func UnmarshalFlex(raw []byte, v any) error {
	first := json.Unmarshal(raw, v)
	if first == nil {
		return nil
	}
	stripped := []byte(StripCodeFence(string(raw)))
	if !bytes.Equal(stripped, raw) {
		if err := json.Unmarshal(stripped, v); err == nil {
			return nil
		}
	}
	var s string
	if err := json.Unmarshal(bytes.TrimSpace(stripped), &s); err == nil {
		if err := json.Unmarshal([]byte(s), v); err == nil {
			return nil
		}
	}
	return first
}

// StripCodeFence removes one surrounding ``` fence (with optional language tag).
func StripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		return s
	}
	body := t[nl+1:]
	body = strings.TrimRight(body, " \t\r\n")
	if !strings.HasSuffix(body, "```") {
		return s
	}
	return strings.TrimSpace(strings.TrimSuffix(body, "```"))
}

// MarshalNoEscape encodes v into JSON without escaping <, >, & into \u003c and friends.
func MarshalNoEscape(v any) ([]byte, error) {
	return encode(v, "")
}

// MarshalNoEscapeIndent is MarshalNoEscape with indentation.
func MarshalNoEscapeIndent(v any, indent string) ([]byte, error) {
	return encode(v, indent)
}

func encode(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// json.Encoder always appends a newline.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
