package output

import (
	"bytes"
	"os"
	"testing"
)

func TestParseColorMode(t *testing.T) {
	tests := []struct {
		input string
		want  ColorMode
	}{
		{"auto", ColorAuto},
		{"always", ColorAlways},
		{"never", ColorNever},
		{"", ColorAuto},
		{"sometimes", ColorAuto},
	}

	for _, tt := range tests {
		if got := ParseColorMode(tt.input); got != tt.want {
			t.Errorf("ParseColorMode(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestPaint(t *testing.T) {
	if got := paint(false, colorRed, "text"); got != "text" {
		t.Errorf("paint(off) = %q, want unchanged", got)
	}
	if got := paint(true, colorRed, "text"); got != colorRed+"text"+colorReset {
		t.Errorf("paint(on) = %q", got)
	}
}

func TestShouldColorize(t *testing.T) {
	tests := []struct {
		name     string
		mode     ColorMode
		writer   any
		expected bool
	}{
		{
			name:     "ColorAlways - any writer",
			mode:     ColorAlways,
			writer:   &bytes.Buffer{},
			expected: true,
		},
		{
			name:     "ColorNever - any writer",
			mode:     ColorNever,
			writer:   os.Stdout,
			expected: false,
		},
		{
			name:     "ColorAuto - non-file writer",
			mode:     ColorAuto,
			writer:   &bytes.Buffer{},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldColorize(tt.mode, tt.writer); got != tt.expected {
				t.Errorf("shouldColorize() = %v, want %v", got, tt.expected)
			}
		})
	}
}
