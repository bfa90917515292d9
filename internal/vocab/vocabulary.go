// Package vocab builds bounded token vocabularies from cleaned text batches.
package vocab

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Vocabulary maps tokens to dense slot indices in [0, Size()). It is
// immutable once built and safe for concurrent reads.
type Vocabulary struct {
	tokens []string
	counts []int
	index  map[string]int
}

// Entry is one vocabulary slot.
type Entry struct {
	Slot  int    `json:"slot"`
	Token string `json:"token"`
	Count int    `json:"count"`
}

// New creates a vocabulary whose slot i holds tokens[i]. counts may be nil.
// Duplicate or empty tokens are rejected.
func New(tokens []string, counts []int) (*Vocabulary, error) {
	if counts != nil && len(counts) != len(tokens) {
		return nil, fmt.Errorf("token/count length mismatch: %d vs %d", len(tokens), len(counts))
	}
	v := &Vocabulary{
		tokens: make([]string, len(tokens)),
		counts: make([]int, len(tokens)),
		index:  make(map[string]int, len(tokens)),
	}
	for i, tok := range tokens {
		if tok == "" {
			return nil, fmt.Errorf("empty token at slot %d", i)
		}
		if prev, ok := v.index[tok]; ok {
			return nil, fmt.Errorf("duplicate token %q at slots %d and %d", tok, prev, i)
		}
		v.index[tok] = i
		v.tokens[i] = tok
		if counts != nil {
			v.counts[i] = counts[i]
		}
	}
	return v, nil
}

// Size returns the number of slots.
func (v *Vocabulary) Size() int {
	if v == nil {
		return 0
	}
	return len(v.tokens)
}

// Index returns the slot of tok.
func (v *Vocabulary) Index(tok string) (int, bool) {
	if v == nil {
		return 0, false
	}
	i, ok := v.index[tok]
	return i, ok
}

// Token returns the token at slot.
func (v *Vocabulary) Token(slot int) string {
	return v.tokens[slot]
}

// Tokens returns a copy of the tokens in slot order.
func (v *Vocabulary) Tokens() []string {
	out := make([]string, len(v.tokens))
	copy(out, v.tokens)
	return out
}

// Entries returns up to limit slots in slot order; limit <= 0 returns all.
func (v *Vocabulary) Entries(limit int) []Entry {
	n := v.Size()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = Entry{Slot: i, Token: v.tokens[i], Count: v.counts[i]}
	}
	return out
}

// Equal reports whether both vocabularies assign the same slots to the same
// tokens. Counts are not compared.
func (v *Vocabulary) Equal(o *Vocabulary) bool {
	if v.Size() != o.Size() {
		return false
	}
	for i := range v.tokens {
		if v.tokens[i] != o.tokens[i] {
			return false
		}
	}
	return true
}

// Write stores the vocabulary as one "token<TAB>count" line per slot.
func (v *Vocabulary) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i, tok := range v.tokens {
		bw.WriteString(tok)
		bw.WriteByte('\t')
		bw.WriteString(strconv.Itoa(v.counts[i]))
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read parses the format produced by Write.
func Read(r io.Reader) (*Vocabulary, error) {
	var (
		tokens []string
		counts []int
	)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		tok, countStr, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, fmt.Errorf("line %d: missing count", line)
		}
		count, err := strconv.Atoi(countStr)
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing count: %w", line, err)
		}
		tokens = append(tokens, tok)
		counts = append(counts, count)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}
	return New(tokens, counts)
}
