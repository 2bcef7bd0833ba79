package segment

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"empty", "", ""},
		{"lowercase passthrough", "hello world", "hello world"},
		{"uppercase folded", "Hello World", "hello world"},
		{"punctuation collapses", "Hello, world!", "hello world"},
		{"punctuation run collapses once", "wait... what?!", "wait what"},
		{"leading and trailing trimmed", "  hi there  ", "hi there"},
		{"only punctuation", "?!...", ""},
		{"digits kept", "room 42B", "room 42b"},
		{"mixed whitespace", "a\t b\n\nc", "a b c"},
		{"unicode letters kept", "Café au lait", "café au lait"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.expected)
			}
		})
	}
}
