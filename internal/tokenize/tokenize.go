// Package tokenize splits cleaned text into lowercase alphanumeric tokens.
package tokenize

// Tokenize lowercases text and splits it on every byte outside [a-z0-9].
// Token order and multiplicity are preserved; empty fragments are dropped.
// Non-ASCII bytes act as separators.
func Tokenize(text string) []string {
	var tokens []string
	Each(text, func(t string) { tokens = append(tokens, t) })
	return tokens
}

// Each calls fn for every token in text without allocating the token slice.
// Tokens are passed in order, duplicates included.
func Each(text string, fn func(token string)) {
	buf := make([]byte, 0, 16)
	for i := 0; i < len(text); i++ {
		c := lower(text[i])
		if isTokenByte(c) {
			buf = append(buf, c)
			continue
		}
		if len(buf) > 0 {
			fn(string(buf))
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		fn(string(buf))
	}
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func isTokenByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
