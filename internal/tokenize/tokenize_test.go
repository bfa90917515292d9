package tokenize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"only separators", " .,!?- ", nil},
		{"simple", "check now!", []string{"check", "now"}},
		{"keeps duplicates", "now now now", []string{"now", "now", "now"}},
		{"uppercase is lowered", "Bob SAID Now", []string{"bob", "said", "now"}},
		{"punctuation splits", "well-known,fact!yes", []string{"well", "known", "fact", "yes"}},
		{"digits kept", "top 10 in 2024", []string{"top", "10", "in", "2024"}},
		{"underscore splits", "snake_case", []string{"snake", "case"}},
		{"non-ascii separates", "café olé", []string{"caf", "ol"}},
		{"multiple spaces", "a   b", []string{"a", "b"}},
		{"tabs and newlines", "a\tb\nc", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestEachMatchesTokenize(t *testing.T) {
	inputs := []string{"", "bob said now!!", "check  now! ", "A-b_C d3 über"}
	for _, in := range inputs {
		var got []string
		Each(in, func(tok string) { got = append(got, tok) })
		assert.Equal(t, Tokenize(in), got, "input %q", in)
	}
}

func TestTokenizeIdempotentOnOutput(t *testing.T) {
	toks := Tokenize("Hello, World! 42 times")
	for _, tok := range toks {
		assert.Equal(t, []string{tok}, Tokenize(tok))
	}
}
