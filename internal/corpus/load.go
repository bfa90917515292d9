package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/matsen/featbench/internal/logging"
)

const (
	// MinFields is the number of fields a data line needs to become a record.
	MinFields = 3

	// maxLineBytes bounds a single input line.
	maxLineBytes = 4 * 1024 * 1024
)

// ErrEmptyCorpus is returned by callers that require at least one record.
var ErrEmptyCorpus = errors.New("corpus contains no records")

// LoadStats describes what happened to the data lines of a corpus file.
type LoadStats struct {
	Lines           int `json:"lines"`
	Loaded          int `json:"loaded"`
	ShortLines      int `json:"short_lines"`
	MalformedLines  int `json:"malformed_lines"`
	DefaultedLabels int `json:"defaulted_labels"`
}

// Load reads records from the file at path. See Read for the format.
func Load(path string, logger *zap.Logger) ([]Record, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("opening corpus: %w", err)
	}
	defer f.Close()

	recs, stats, err := Read(f, logger)
	if err != nil {
		return nil, stats, fmt.Errorf("reading %s: %w", path, err)
	}
	return recs, stats, nil
}

// Read parses a header line followed by comma-delimited data lines. Double
// quotes toggle quoting and are not part of field values; commas inside
// quotes do not split. A line becomes a record when it has at least MinFields
// fields: the text is field 1 and the label is the last field.
//
// Lines with fewer fields are skipped but still consume an ID. Lines longer
// than the line limit are skipped with a warning and do not consume an ID.
func Read(r io.Reader, logger *zap.Logger) ([]Record, LoadStats, error) {
	return read(r, logger, maxLineBytes)
}

func read(r io.Reader, logger *zap.Logger, maxLine int) ([]Record, LoadStats, error) {
	logger = logging.OrNop(logger)
	var (
		recs   []Record
		stats  LoadStats
		lineID int
	)

	br := bufio.NewReader(r)

	// Header.
	if _, _, err := readLine(br, maxLine); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, nil
		}
		return nil, stats, fmt.Errorf("reading header: %w", err)
	}

	for {
		line, tooLong, err := readLine(br, maxLine)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return recs, stats, fmt.Errorf("reading line %d: %w", stats.Lines+1, err)
		}
		stats.Lines++

		if tooLong {
			stats.MalformedLines++
			logger.Warn("skipping malformed line",
				zap.Int("line", stats.Lines),
				zap.Int("max_bytes", maxLine))
			continue
		}
		lineID++

		fields := SplitFields(line)
		if len(fields) < MinFields {
			stats.ShortLines++
			continue
		}

		label, origin := ParseLabel(fields[len(fields)-1])
		if origin == LabelDefaulted {
			stats.DefaultedLabels++
		}
		recs = append(recs, Record{
			ID:          lineID,
			Text:        trimQuotes(fields[1]),
			Label:       label,
			LabelOrigin: origin,
		})
	}

	stats.Loaded = len(recs)
	logger.Info("corpus loaded",
		zap.Int("records", stats.Loaded),
		zap.Int("short_lines", stats.ShortLines),
		zap.Int("malformed_lines", stats.MalformedLines))
	return recs, stats, nil
}

// readLine returns the next line without its line ending. A line longer than
// maxLine is drained and reported as too long instead of being returned.
func readLine(br *bufio.Reader, maxLine int) (string, bool, error) {
	var (
		buf     []byte
		tooLong bool
	)
	for {
		frag, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", false, err
		}
		if !tooLong {
			if len(buf)+len(frag) > maxLine {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, frag...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

// SplitFields splits one data line on commas outside double quotes. Quote
// characters are dropped and each field is trimmed of surrounding whitespace.
// An unclosed quote runs to the end of the line.
func SplitFields(line string) []string {
	var (
		fields   []string
		cur      strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, strings.TrimSpace(cur.String()))
}
