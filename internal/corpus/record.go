// Package corpus loads labelled text records from delimited files and writes
// cleaned corpora back out.
package corpus

import (
	"strings"
)

// Label is the sentiment class attached to a record.
type Label int

// Sentiment labels as they appear in the numeric encoding.
const (
	LabelIrrelevant Label = -1
	LabelNegative   Label = 0
	LabelNeutral    Label = 1
	LabelPositive   Label = 2
)

func (l Label) String() string {
	switch l {
	case LabelIrrelevant:
		return "irrelevant"
	case LabelNegative:
		return "negative"
	case LabelNeutral:
		return "neutral"
	case LabelPositive:
		return "positive"
	default:
		return "unknown"
	}
}

// LabelOrigin tells whether a label was recognised or defaulted.
type LabelOrigin int

const (
	// LabelExact means the raw value matched a known label.
	LabelExact LabelOrigin = iota
	// LabelDefaulted means the raw value was unrecognised and mapped to neutral.
	LabelDefaulted
)

// Record is one labelled text. ID is the 1-based data line number it came from.
type Record struct {
	ID          int         `json:"id"`
	Text        string      `json:"text"`
	Label       Label       `json:"label"`
	LabelOrigin LabelOrigin `json:"-"`
}

// ParseLabel maps a raw label field to a Label. Surrounding quotes and all
// whitespace are removed first. Unrecognised values map to LabelNeutral with
// origin LabelDefaulted.
func ParseLabel(raw string) (Label, LabelOrigin) {
	s := stripWhitespace(trimQuotes(raw))
	switch s {
	case "Positive", "2":
		return LabelPositive, LabelExact
	case "Negative", "0":
		return LabelNegative, LabelExact
	case "Irrelevant", "-1":
		return LabelIrrelevant, LabelExact
	case "Neutral", "1":
		return LabelNeutral, LabelExact
	default:
		return LabelNeutral, LabelDefaulted
	}
}

// trimQuotes removes one pair of double quotes wrapping the whole string.
func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			return -1
		}
		return r
	}, s)
}
