package bench

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matsen/featbench/internal/config"
	"github.com/matsen/featbench/internal/corpus"
	"github.com/matsen/featbench/internal/dispatch"
	"github.com/matsen/featbench/internal/encode"
	"github.com/matsen/featbench/internal/featstore"
	"github.com/matsen/featbench/internal/logging"
	"github.com/matsen/featbench/internal/textclean"
	"github.com/matsen/featbench/internal/vocab"
)

// ErrStrategyMismatch is returned when the sequential and parallel strategies
// disagree on a stage's output.
var ErrStrategyMismatch = errors.New("sequential and parallel outputs differ")

// ProgressReporter receives progress updates as batch sizes complete.
type ProgressReporter interface {
	// OnProgress is called after each batch size finishes.
	OnProgress(current, total int)
}

// ProgressFunc is a function adapter for ProgressReporter.
type ProgressFunc func(current, total int)

// OnProgress implements ProgressReporter.
func (f ProgressFunc) OnProgress(current, total int) {
	f(current, total)
}

// Options controls a benchmark run.
type Options struct {
	Workers        int
	ChunkSize      int
	MaxVocab       int
	BatchSizes     []int
	CleanCacheSize int
	OutputDir      string
	Persist        bool
	Verify         bool
}

// OptionsFromConfig maps a loaded configuration onto run options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:        cfg.Workers,
		ChunkSize:      cfg.ChunkSize,
		MaxVocab:       cfg.MaxVocab,
		BatchSizes:     slices.Clone(cfg.BatchSizes),
		CleanCacheSize: cfg.CleanCacheSize,
		OutputDir:      cfg.OutputDir,
		Persist:        !cfg.SkipPersist,
		Verify:         !cfg.SkipVerify,
	}
}

// Runner benchmarks both strategies over each configured batch size.
type Runner struct {
	opts     Options
	logger   *zap.Logger
	progress ProgressReporter
}

// NewRunner creates a Runner. Non-positive worker counts are coerced to 1.
func NewRunner(opts Options, logger *zap.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Runner{opts: opts, logger: logging.OrNop(logger)}
}

// SetProgressReporter sets the progress reporter for the runner.
func (r *Runner) SetProgressReporter(reporter ProgressReporter) {
	r.progress = reporter
}

// ClampBatchSizes caps every requested size at available, keeping order.
func ClampBatchSizes(sizes []int, available int) []int {
	out := make([]int, len(sizes))
	for i, n := range sizes {
		out[i] = min(n, available)
	}
	return out
}

// Run benchmarks records, taking the first n records for each batch size.
// An empty corpus is an error.
func (r *Runner) Run(ctx context.Context, input string, records []corpus.Record) (*Report, error) {
	if len(records) == 0 {
		return nil, corpus.ErrEmptyCorpus
	}
	if r.opts.MaxVocab < 0 {
		return nil, fmt.Errorf("%w: %d", vocab.ErrNegativeSize, r.opts.MaxVocab)
	}

	start := time.Now()
	report := &Report{
		ID:          uuid.NewString(),
		StartedAt:   start.UTC(),
		Input:       input,
		Fingerprint: corpus.Fingerprint(records),
		Records:     len(records),
		Workers:     r.opts.Workers,
		MaxVocab:    r.opts.MaxVocab,
	}

	seq := dispatch.Sequential(dispatch.WithLogger(r.logger))
	par := dispatch.New(r.opts.Workers,
		dispatch.WithChunkSize(r.opts.ChunkSize),
		dispatch.WithLogger(r.logger))

	sizes := ClampBatchSizes(r.opts.BatchSizes, len(records))
	for i, n := range sizes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.logger.Info("benchmarking batch", zap.Int("batch_size", n), zap.Int("requested", r.opts.BatchSizes[i]))
		sr, err := r.runSize(ctx, records[:n], seq, par)
		if err != nil {
			return nil, fmt.Errorf("batch size %d: %w", n, err)
		}
		sr.Requested = r.opts.BatchSizes[i]
		report.Sizes = append(report.Sizes, sr)

		if r.progress != nil {
			r.progress.OnProgress(i+1, len(sizes))
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

func (r *Runner) runSize(ctx context.Context, recs []corpus.Record, seq, par *dispatch.Dispatcher) (SizeReport, error) {
	n := len(recs)
	sr := SizeReport{BatchSize: n, Verified: r.opts.Verify}
	log := r.logger.With(zap.Int("batch_size", n))

	// Clean. Each strategy gets its own cleaner so a memo cache filled by one
	// run cannot speed up the other.
	seqCleaner, err := textclean.NewCleaner(seq, textclean.WithLogger(r.logger), textclean.WithCache(r.opts.CleanCacheSize))
	if err != nil {
		return sr, err
	}
	parCleaner, err := textclean.NewCleaner(par, textclean.WithLogger(r.logger), textclean.WithCache(r.opts.CleanCacheSize))
	if err != nil {
		return sr, err
	}

	var seqResults, parResults []textclean.Result
	clean := Timing{Stage: StageClean}
	clean.Sequential, err = timed(func() (err error) {
		seqResults, err = seqCleaner.CleanBatch(ctx, recs)
		return err
	})
	if err != nil {
		return sr, err
	}
	clean.Parallel, err = timed(func() (err error) {
		parResults, err = parCleaner.CleanBatch(ctx, recs)
		return err
	})
	if err != nil {
		return sr, err
	}
	seqTexts, parTexts := textclean.Texts(seqResults), textclean.Texts(parResults)
	if r.opts.Verify && !slices.Equal(seqTexts, parTexts) {
		return sr, fmt.Errorf("%w: cleaned texts", ErrStrategyMismatch)
	}
	sr.Cleaning = textclean.Summarize(seqResults)
	sr.Timings = append(sr.Timings, clean)
	log.Debug("cleaning done",
		zap.Duration("sequential", clean.Sequential),
		zap.Duration("parallel", clean.Parallel),
		zap.Int("fallbacks", sr.Cleaning.Fallback))

	// Vocabulary.
	var seqVocab, parVocab *vocab.Vocabulary
	build := Timing{Stage: StageVocab}
	build.Sequential, err = timed(func() (err error) {
		seqVocab, _, err = vocab.Build(ctx, seqTexts, r.opts.MaxVocab, seq)
		return err
	})
	if err != nil {
		return sr, err
	}
	build.Parallel, err = timed(func() (err error) {
		parVocab, _, err = vocab.Build(ctx, parTexts, r.opts.MaxVocab, par)
		return err
	})
	if err != nil {
		return sr, err
	}
	if r.opts.Verify && !seqVocab.Equal(parVocab) {
		return sr, fmt.Errorf("%w: vocabulary", ErrStrategyMismatch)
	}
	sr.VocabSize = seqVocab.Size()
	sr.Timings = append(sr.Timings, build)
	log.Debug("vocabulary built", zap.Int("size", sr.VocabSize))

	// Encode.
	seqEncoder := encode.NewEncoder(seqVocab, par, r.logger)
	parEncoder := encode.NewEncoder(parVocab, par, r.logger)
	var seqBatch, parBatch encode.Batch
	enc := Timing{Stage: StageEncode}
	enc.Sequential, err = timed(func() (err error) {
		seqBatch, err = seqEncoder.EncodeSequential(ctx, seqTexts)
		return err
	})
	if err != nil {
		return sr, err
	}
	enc.Parallel, err = timed(func() (err error) {
		parBatch, err = parEncoder.EncodeParallel(ctx, parTexts)
		return err
	})
	if err != nil {
		return sr, err
	}
	if r.opts.Verify && !seqBatch.Equal(parBatch) {
		row, col := seqBatch.FirstMismatch(parBatch)
		return sr, fmt.Errorf("%w: feature vectors at row %d, column %d", ErrStrategyMismatch, row, col)
	}
	sr.Timings = append(sr.Timings, enc)
	sr.Features = seqBatch.Stats()

	if r.opts.Persist {
		for _, out := range []struct {
			strategy string
			batch    encode.Batch
		}{
			{StrategySequential, seqBatch},
			{StrategyParallel, parBatch},
		} {
			path := filepath.Join(r.opts.OutputDir, featstore.FileName(n, out.strategy))
			if err := featstore.Save(path, out.batch); err != nil {
				return sr, fmt.Errorf("saving %s features: %w", out.strategy, err)
			}
			sr.Files = append(sr.Files, path)
		}
		log.Info("saved feature vectors", zap.Strings("files", sr.Files))
	}

	return sr, nil
}

// timed runs fn and returns its wall time.
func timed(fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	return time.Since(start), err
}
