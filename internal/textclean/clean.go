// Package textclean normalizes raw social-media text before tokenization.
package textclean

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxTextBytes bounds the size of a single text the cleaner will
// process. Larger inputs fail with ErrTextTooLong and fall back to the raw
// text.
const DefaultMaxTextBytes = 1 << 20

// ErrTextTooLong is returned when an input exceeds the configured size limit.
var ErrTextTooLong = errors.New("text exceeds cleaning limit")

var (
	urlPattern     = regexp.MustCompile(`(https?://|www\.)\S+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
	specialChars   = regexp.MustCompile(`[^\w\s.,!?-]`)
	multiSpace     = regexp.MustCompile(`\s+`)
)

// Clean applies the cleaning pipeline to text:
//  1. drop URLs (http://, https://, www. followed by non-space)
//  2. drop @mentions
//  3. lowercase ASCII letters; other bytes are left as they are
//  4. replace characters other than word characters, whitespace and .,!?- with a space
//  5. collapse whitespace runs to one space and trim
//
// Clean is pure and safe for concurrent use.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	s := urlPattern.ReplaceAllLiteralString(text, "")
	s = mentionPattern.ReplaceAllLiteralString(s, "")
	s = lowerASCII(s)
	s = specialChars.ReplaceAllLiteralString(s, " ")
	s = multiSpace.ReplaceAllLiteralString(s, " ")
	return strings.TrimSpace(s)
}

func lowerASCII(s string) string {
	i := strings.IndexFunc(s, func(r rune) bool { return r >= 'A' && r <= 'Z' })
	if i < 0 {
		return s
	}
	b := []byte(s)
	for ; i < len(b); i++ {
		if c := b[i]; c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// cleanChecked runs Clean with a size guard, converting panics into errors.
func cleanChecked(text string, maxBytes int) (out string, err error) {
	if maxBytes > 0 && len(text) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrTextTooLong, len(text), maxBytes)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleaning panicked: %v", r)
		}
	}()
	return Clean(text), nil
}
