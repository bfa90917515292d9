package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/matsen/featbench/internal/bench"
)

var (
	// ErrRunNotFound is returned when no run matches an ID or prefix.
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousID is returned when an ID prefix matches more than one run.
	ErrAmbiguousID = errors.New("run ID prefix is ambiguous")
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	Input       string        `json:"input,omitempty"`
	Fingerprint string        `json:"fingerprint"`
	Records     int           `json:"records"`
	Workers     int           `json:"workers"`
	MaxVocab    int           `json:"max_vocab"`
	Sizes       int           `json:"sizes"`
	Duration    time.Duration `json:"duration_ns"`
}

// SpeedupPoint is the speedup of one stage at one batch size in one run.
type SpeedupPoint struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Workers   int       `json:"workers"`
	BatchSize int       `json:"batch_size"`
	Speedup   float64   `json:"speedup"`
}

// timeLayout is a fixed-width RFC 3339 layout so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectRunFields = `id, started_at, input, fingerprint, records, workers, max_vocab, sizes, duration_ns`

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			input TEXT,
			fingerprint TEXT NOT NULL,
			records INTEGER NOT NULL,
			workers INTEGER NOT NULL,
			max_vocab INTEGER NOT NULL,
			sizes INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			report_json TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

		-- One row per (run, batch size, stage)
		CREATE TABLE IF NOT EXISTS run_timings (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			size_index INTEGER NOT NULL,
			batch_size INTEGER NOT NULL,
			stage TEXT NOT NULL CHECK (stage IN ('clean', 'vocab', 'encode')),
			sequential_ns INTEGER NOT NULL,
			parallel_ns INTEGER NOT NULL,
			PRIMARY KEY (run_id, size_index, stage)
		);

		CREATE INDEX IF NOT EXISTS idx_timings_stage ON run_timings(stage, batch_size);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveRun inserts run, replacing any stored run with the same ID.
func (d *DB) SaveRun(run *bench.Report) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRun(tx, run); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", run.ID, err)
	}
	return nil
}

func insertRun(tx *sql.Tx, run *bench.Report) error {
	reportJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", run.ID, err)
	}

	if _, err := tx.Exec("DELETE FROM run_timings WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("clearing timings for %s: %w", run.ID, err)
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO runs (`+selectRunFields+`, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.StartedAt.UTC().Format(timeLayout), nullableString(run.Input), run.Fingerprint,
		run.Records, run.Workers, run.MaxVocab, len(run.Sizes), int64(run.Duration),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_timings (run_id, size_index, batch_size, stage, sequential_ns, parallel_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing timings insert: %w", err)
	}
	defer stmt.Close()

	for i, sr := range run.Sizes {
		for _, t := range sr.Timings {
			_, err := stmt.Exec(run.ID, i, sr.BatchSize, string(t.Stage), int64(t.Sequential), int64(t.Parallel))
			if err != nil {
				return fmt.Errorf("inserting %s timing for %s: %w", t.Stage, run.ID, err)
			}
		}
	}
	return nil
}

// RebuildFromJSONL clears the database and reloads every run from a JSONL file.
func (d *DB) RebuildFromJSONL(jsonlPath string) (int, error) {
	runs, err := ReadRuns(jsonlPath)
	if err != nil {
		return 0, fmt.Errorf("reading JSONL: %w", err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM run_timings"); err != nil {
		return 0, fmt.Errorf("clearing run_timings table: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM runs"); err != nil {
		return 0, fmt.Errorf("clearing runs table: %w", err)
	}
	for i := range runs {
		if err := insertRun(tx, &runs[i]); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rebuild: %w", err)
	}
	return len(runs), nil
}

// GetRun returns the run with the given ID. A unique ID prefix also matches.
func (d *DB) GetRun(id string) (*bench.Report, error) {
	if id == "" {
		return nil, ErrRunNotFound
	}

	var reportJSON string
	err := d.db.QueryRow("SELECT report_json FROM runs WHERE id = ?", id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		reportJSON, err = d.findByPrefix(id)
	}
	if err != nil {
		return nil, err
	}

	var run bench.Report
	if err := json.Unmarshal([]byte(reportJSON), &run); err != nil {
		return nil, fmt.Errorf("parsing stored run %s: %w", id, err)
	}
	return &run, nil
}

func (d *DB) findByPrefix(prefix string) (string, error) {
	rows, err := d.db.Query("SELECT report_json FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2", len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("looking up run %s: %w", prefix, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return "", err
		}
		matches = append(matches, s)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
}

// ListRuns returns stored runs, newest first, optionally limited.
func (d *DB) ListRuns(limit int) ([]RunSummary, error) {
	query := `SELECT ` + selectRunFields + ` FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r        RunSummary
			started  string
			input    sql.NullString
			duration int64
		)
		if err := rows.Scan(&r.ID, &started, &input, &r.Fingerprint, &r.Records,
			&r.Workers, &r.MaxVocab, &r.Sizes, &duration); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, err = time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("parsing start time of %s: %w", r.ID, err)
		}
		r.Input = input.String
		r.Duration = time.Duration(duration)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountRuns returns the number of stored runs.
func (d *DB) CountRuns() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

// Speedups returns the recorded speedup of stage across all runs, ordered by
// batch size and then run start time.
func (d *DB) Speedups(stage bench.Stage) ([]SpeedupPoint, error) {
	rows, err := d.db.Query(`
		SELECT r.id, r.started_at, r.workers, t.batch_size, t.sequential_ns, t.parallel_ns
		FROM run_timings t JOIN runs r ON r.id = t.run_id
		WHERE t.stage = ?
		ORDER BY t.batch_size, r.started_at, t.size_index
	`, string(stage))
	if err != nil {
		return nil, fmt.Errorf("querying speedups: %w", err)
	}
	defer rows.Close()

	var points []SpeedupPoint
	for rows.Next() {
		var (
			p        SpeedupPoint
			started  string
			seq, par int64
		)
		if err := rows.Scan(&p.RunID, &started, &p.Workers, &p.BatchSize, &seq, &par); err != nil {
			return nil, fmt.Errorf("scanning speedup: %w", err)
		}
		if p.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parsing start time of %s: %w", p.RunID, err)
		}
		p.Speedup = bench.Timing{Sequential: time.Duration(seq), Parallel: time.Duration(par)}.Speedup()
		points = append(points, p)
	}
	return points, rows.Err()
}

// nullableString converts a string to sql.NullString, treating empty as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
