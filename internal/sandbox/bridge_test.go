package sandbox

import (
	"errors"
	"reflect"
	"testing"
)

func TestSanitizePlainValues(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int", 42, int64(42)},
		{"uint", uint8(7), int64(7)},
		{"float", 3.5, 3.5},
		{"string", "TEST", "TEST"},
		{"slice", []interface{}{1, "a"}, []interface{}{int64(1), "a"}},
		{
			"nested map",
			map[string]interface{}{"a": 1, "b": map[string]interface{}{"c": []interface{}{1, 2, 3}}},
			map[string]interface{}{"a": int64(1), "b": map[string]interface{}{"c": []interface{}{int64(1), int64(2), int64(3)}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.in)
			if err != nil {
				t.Fatalf("Sanitize() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Sanitize() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSanitizeRejectsLiveValues(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
	}{
		{"function", func() {}},
		{"channel", make(chan int)},
		{"nested function", map[string]interface{}{"cb": func() {}}},
		{"non-string map keys", map[int]interface{}{1: "a"}},
		{"struct", struct{ A int }{A: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Sanitize(tt.in); !errors.Is(err, ErrNotPlainData) {
				t.Errorf("Sanitize() error = %v, want ErrNotPlainData", err)
			}
		})
	}
}

func TestSanitizeBindings(t *testing.T) {
	out, err := SanitizeBindings(map[string]interface{}{"n": 1, "s": "x"})
	if err != nil {
		t.Fatalf("SanitizeBindings() error = %v", err)
	}
	if out["n"] != int64(1) || out["s"] != "x" {
		t.Errorf("unexpected bindings: %#v", out)
	}

	if out, err := SanitizeBindings(nil); err != nil || out != nil {
		t.Errorf("nil bindings: got %#v, %v", out, err)
	}

	if _, err := SanitizeBindings(map[string]interface{}{"fn": func() {}}); !errors.Is(err, ErrNotPlainData) {
		t.Errorf("expected ErrNotPlainData for function binding, got %v", err)
	}
}

func TestSanitizeDepthLimit(t *testing.T) {
	// Self-referential map would recurse forever without the depth cap.
	m := map[string]interface{}{}
	m["self"] = m

	if _, err := Sanitize(m); !errors.Is(err, ErrNotPlainData) {
		t.Errorf("expected depth error, got %v", err)
	}
}
