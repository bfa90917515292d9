package textclean

// Outcome records which branch produced a cleaned text.
type Outcome int

const (
	// OutcomeCleaned means the pipeline ran and its output was used.
	OutcomeCleaned Outcome = iota
	// OutcomeEmpty means the input was empty and the pipeline was skipped.
	OutcomeEmpty
	// OutcomeFallback means cleaning failed and the raw text was kept.
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCleaned:
		return "cleaned"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Result is the cleaned form of one record.
type Result struct {
	RecordID int     `json:"record_id"`
	Text     string  `json:"text"`
	Outcome  Outcome `json:"outcome"`
	Err      error   `json:"-"`
}

// Texts extracts the cleaned texts, preserving order.
func Texts(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Text
	}
	return out
}

// Summary counts results per outcome.
type Summary struct {
	Cleaned  int `json:"cleaned"`
	Empty    int `json:"empty"`
	Fallback int `json:"fallback"`
}

// Summarize tallies outcomes across a batch.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Outcome {
		case OutcomeCleaned:
			s.Cleaned++
		case OutcomeEmpty:
			s.Empty++
		case OutcomeFallback:
			s.Fallback++
		}
	}
	return s
}
