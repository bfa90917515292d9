package textclean

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matsen/featbench/internal/corpus"
	"github.com/matsen/featbench/internal/dispatch"
)

// progressEvery is the sampling interval for progress log lines.
const progressEvery = 1000

// Cleaner cleans batches of records on a Dispatcher.
type Cleaner struct {
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
	maxBytes   int
	cache      *lru.Cache[string, string]
}

// Option configures a Cleaner.
type Option func(*Cleaner) error

// WithLogger sets the logger for fallback warnings and progress.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cleaner) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

// WithMaxTextBytes overrides DefaultMaxTextBytes. Zero disables the limit.
func WithMaxTextBytes(n int) Option {
	return func(c *Cleaner) error {
		c.maxBytes = n
		return nil
	}
}

// WithCache memoizes cleaned texts in an LRU of the given size, which pays off
// on corpora with many duplicate texts. Sizes <= 0 leave caching off.
func WithCache(size int) Option {
	return func(c *Cleaner) error {
		if size <= 0 {
			return nil
		}
		cache, err := lru.New[string, string](size)
		if err != nil {
			return fmt.Errorf("creating clean cache: %w", err)
		}
		c.cache = cache
		return nil
	}
}

// NewCleaner creates a Cleaner that fans work out over d.
func NewCleaner(d *dispatch.Dispatcher, opts ...Option) (*Cleaner, error) {
	if d == nil {
		d = dispatch.Sequential()
	}
	c := &Cleaner{
		dispatcher: d,
		logger:     zap.NewNop(),
		maxBytes:   DefaultMaxTextBytes,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CleanRecord cleans one record. Empty text short-circuits to an empty result;
// a cleaning failure keeps the raw text and reports OutcomeFallback.
func (c *Cleaner) CleanRecord(rec corpus.Record) Result {
	if rec.Text == "" {
		return Result{RecordID: rec.ID, Outcome: OutcomeEmpty}
	}
	if c.cache != nil {
		if cleaned, ok := c.cache.Get(rec.Text); ok {
			return Result{RecordID: rec.ID, Text: cleaned, Outcome: OutcomeCleaned}
		}
	}
	cleaned, err := cleanChecked(rec.Text, c.maxBytes)
	if err != nil {
		return Result{RecordID: rec.ID, Text: rec.Text, Outcome: OutcomeFallback, Err: err}
	}
	if c.cache != nil {
		c.cache.Add(rec.Text, cleaned)
	}
	return Result{RecordID: rec.ID, Text: cleaned, Outcome: OutcomeCleaned}
}

// CleanBatch cleans every record and returns results aligned with recs.
// Per-record failures are logged and degrade to the raw text; the only error
// returned is from ctx.
func (c *Cleaner) CleanBatch(ctx context.Context, recs []corpus.Record) ([]Result, error) {
	results := make([]Result, len(recs))
	progress := rate.Sometimes{Every: progressEvery}

	err := c.dispatcher.Run(ctx, len(recs), func(i int) error {
		res := c.CleanRecord(recs[i])
		if res.Outcome == OutcomeFallback {
			c.logger.Warn("cleaning failed, keeping raw text",
				zap.Int("record_id", res.RecordID),
				zap.Error(res.Err))
		}
		results[i] = res
		progress.Do(func() {
			c.logger.Debug("cleaning progress", zap.Int("index", i), zap.Int("total", len(recs)))
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleaning batch: %w", err)
	}
	return results, nil
}
