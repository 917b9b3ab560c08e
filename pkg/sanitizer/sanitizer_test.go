package sanitizer

import "testing"

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "trim spaces",
			input: "  Linear Algebra tutorial  ",
			want:  "Linear Algebra tutorial",
		},
		{
			name:  "multiple spaces between words",
			input: "Linear    Algebra",
			want:  "Linear Algebra",
		},
		{
			name:  "tabs and newlines",
			input: "Linear\t\nAlgebra",
			want:  "Linear Algebra",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   \t\n  ",
			want:  "",
		},
		{
			name:  "preserve special characters",
			input: " Café & Lab™ ",
			want:  "Café & Lab™",
		},
		{
			name:  "hebrew characters",
			input: " הרצאת מבוא ",
			want:  "הרצאת מבוא",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrimAndNormalize(tt.input)
			if got != tt.want {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTrimAndNormalize_Idempotent(t *testing.T) {
	inputs := []string{"  a  b  ", "Room 101", "", " \t "}
	for _, in := range inputs {
		once := TrimAndNormalize(in)
		twice := TrimAndNormalize(once)
		if once != twice {
			t.Errorf("TrimAndNormalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeLabel(t *testing.T) {
	if got := NormalizeLabel("  Room-101  "); got != "room-101" {
		t.Errorf("NormalizeLabel = %q, want %q", got, "room-101")
	}
}
