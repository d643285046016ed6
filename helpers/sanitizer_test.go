package helpers

import (
	"strings"
	"testing"
)

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Clean string",
			input:    "SELECT * FROM users WHERE id = 1",
			expected: "SELECT * FROM users WHERE id = 1",
		},
		{
			name:     "NULL byte removed",
			input:    "SELECT\x00 1",
			expected: "SELECT 1",
		},
		{
			name:     "Multiple NULL bytes",
			input:    "\x00a\x00b\x00",
			expected: "ab",
		},
		{
			name:     "Invalid UTF-8 sequence removed",
			input:    "query\xff\xfetext",
			expected: "querytext",
		},
		{
			name:     "Valid multibyte preserved",
			input:    "café",
			expected: "café",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeUTF8(tt.input)
			if got != tt.expected {
				t.Errorf("SanitizeUTF8(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{
			name:     "Shorter than max",
			input:    "short",
			max:      10,
			expected: "short",
		},
		{
			name:     "Exactly max",
			input:    "exact",
			max:      5,
			expected: "exact",
		},
		{
			name:     "Truncated",
			input:    strings.Repeat("x", 20),
			max:      10,
			expected: strings.Repeat("x", 10) + "...",
		},
		{
			name:     "Zero max",
			input:    "anything",
			max:      0,
			expected: "",
		},
		{
			name:     "Multibyte runes counted as runes",
			input:    "ééééé",
			max:      3,
			expected: "ééé...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateString(tt.input, tt.max)
			if got != tt.expected {
				t.Errorf("TruncateString(%q, %d) = %q, expected %q", tt.input, tt.max, got, tt.expected)
			}
		})
	}
}
