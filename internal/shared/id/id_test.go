package id

import (
	"strings"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s := gen.GenerateString()
		if seen[s] {
			t.Fatalf("duplicate ULID generated: %s", s)
		}
		seen[s] = true
	}
}

func TestPrefixedIDs(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"execution", NewExecutionID().String(), "exec_"},
		{"call", NewCallID().String(), "call_"},
		{"context", NewContextID().String(), "ctx_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.id, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, tt.id)
			}
			raw := strings.TrimPrefix(tt.id, tt.prefix)
			if !IsValid(raw) {
				t.Errorf("suffix is not a valid ULID: %q", raw)
			}
		})
	}
}

func TestTimestampExtraction(t *testing.T) {
	gen := NewGenerator()
	s := gen.GenerateString()

	ts, err := Timestamp(s)
	if err != nil {
		t.Fatalf("Timestamp() error = %v", err)
	}
	if ts.IsZero() {
		t.Error("expected non-zero timestamp")
	}
}
