package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteCleaned writes records with their cleaned texts as "id,text,sentiment"
// CSV. The text column is always quoted. texts must be aligned with records.
func WriteCleaned(w io.Writer, records []Record, texts []string) error {
	if len(records) != len(texts) {
		return fmt.Errorf("record/text count mismatch: %d vs %d", len(records), len(texts))
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("id,text,sentiment\n"); err != nil {
		return err
	}
	for i, rec := range records {
		bw.WriteString(strconv.Itoa(rec.ID))
		bw.WriteString(",\"")
		bw.WriteString(strings.ReplaceAll(texts[i], `"`, `""`))
		bw.WriteString("\",")
		bw.WriteString(strconv.Itoa(int(rec.Label)))
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveCleaned writes a cleaned corpus to path, creating parent directories.
// The file is written to a temp path first and renamed into place.
func SaveCleaned(path string, records []Record, texts []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if err := WriteCleaned(f, records, texts); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("writing cleaned corpus: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
