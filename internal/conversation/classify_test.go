package conversation

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		kind    Kind
		wantErr bool
	}{
		{name: "ping is control", raw: `{"type":"ping","timestamp":1712000000}`, kind: KindControl},
		{name: "topic is application", raw: `{"type":"topic","content":"quarterly review"}`, kind: KindApplication},
		{name: "answer is application", raw: `{"type":"answer","content":"executives"}`, kind: KindApplication},
		{name: "accept_plan is application", raw: `{"type":"accept_plan"}`, kind: KindApplication},
		{name: "generate is application", raw: `{"type":"generate"}`, kind: KindApplication},
		{name: "revise_strawman is application", raw: `{"type":"revise_strawman","content":"fewer slides"}`, kind: KindApplication},
		{name: "invalid json", raw: `{"type":`, wantErr: true},
		{name: "not an object", raw: `42`, wantErr: true},
		{name: "missing type", raw: `{"content":"hello"}`, wantErr: true},
		{name: "unknown type", raw: `{"type":"teleport"}`, wantErr: true},
		{name: "empty payload", raw: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, kind, err := Classify([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Fatalf("Classify(%q) err = %v, want ErrMalformedFrame", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify(%q) unexpected error: %v", tt.raw, err)
			}
			if kind != tt.kind {
				t.Fatalf("Classify(%q) kind = %v, want %v", tt.raw, kind, tt.kind)
			}
			if f.Type == "" {
				t.Fatalf("Classify(%q) returned empty frame type", tt.raw)
			}
		})
	}
}

func TestClassifyPingContentIgnored(t *testing.T) {
	t.Parallel()

	// A ping stays control traffic even when it carries a content field.
	f, kind, err := Classify([]byte(`{"type":"ping","content":"not an answer"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != KindControl {
		t.Fatalf("kind = %v, want KindControl", kind)
	}
	if f.Type != "ping" {
		t.Fatalf("type = %q, want ping", f.Type)
	}
}
