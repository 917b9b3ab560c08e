// Package sanitizer provides input normalization for user-entered text.
//
// All functions are idempotent - applying them multiple times produces the
// same result. Invalid input is handled gracefully by returning empty
// strings rather than errors. Normalization runs before validation and
// storage so the same text never exists in two spellings.
package sanitizer

import (
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

// TrimAndNormalize trims leading/trailing whitespace and collapses runs of
// internal whitespace into single spaces. Letters, digits and punctuation
// are preserved as-is.
func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

// NormalizeName normalizes display names (faculty, classroom).
func NormalizeName(name string) string {
	return TrimAndNormalize(name)
}

// NormalizeLabel normalizes identifiers used as lookup keys; lowercased so
// "Room-101" and "room-101" are the same classroom.
func NormalizeLabel(label string) string {
	p := Pipeline{
		TrimAndNormalize,
		strings.ToLower,
	}
	return p.Apply(label)
}
