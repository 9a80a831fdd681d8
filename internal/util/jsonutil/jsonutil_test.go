package jsonutil

import "testing"

func TestUnmarshalFlex(t *testing.T) {
	cases := map[string]string{
		"plain":  `{"a":1}`,
		"fenced": "```json\n{\"a\":1}\n```",
		"quoted": `"{\"a\":1}"`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			var out struct{ A int }
			if err := UnmarshalFlex([]byte(in), &out); err != nil {
				t.Fatalf("UnmarshalFlex: %v", err)
			}
			if out.A != 1 {
				t.Fatalf("A = %d", out.A)
			}
		})
	}
}

func TestUnmarshalFlexRejectsGarbage(t *testing.T) {
	var out map[string]any
	if err := UnmarshalFlex([]byte(`{"a":`), &out); err == nil {
		t.Fatal("expected error")
	}
}

func TestMarshalNoEscape(t *testing.T) {
	b, err := MarshalNoEscape(map[string]string{"k": "<a&b>"})
	if err != nil {
		t.Fatalf("MarshalNoEscape: %v", err)
	}
	if string(b) != `{"k":"<a&b>"}` {
		t.Fatalf("got %s", b)
	}
}
