// Package dispatch fans independent, index-addressed work items out across a
// fixed-size worker pool.
//
// Items are claimed in chunks from a shared cursor as workers free up, so
// uneven per-item cost does not leave workers idle. The caller owns the output
// storage; work functions write only to the slot for the index they receive.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers is the pool size used when none is configured.
	DefaultWorkers = 8

	// chunksPerWorker controls the automatic chunk size: each worker claims
	// roughly 1/chunksPerWorker of its fair share at a time.
	chunksPerWorker = 4
)

// WorkFunc processes the item at index i.
type WorkFunc func(i int) error

// Dispatcher runs WorkFuncs over [0, n) with a bounded number of goroutines.
// A Dispatcher holds no per-run state and may be shared.
type Dispatcher struct {
	workers int
	chunk   int
	logger  *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithChunkSize fixes the number of consecutive items a worker claims at once.
// Values <= 0 select the chunk size automatically.
func WithChunkSize(n int) Option {
	return func(d *Dispatcher) {
		d.chunk = n
	}
}

// WithLogger sets the logger used to report per-item failures.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Dispatcher with the given pool size. Non-positive sizes are
// coerced to 1.
func New(workers int, opts ...Option) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		workers: workers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Sequential returns a single-worker Dispatcher that runs items inline on the
// calling goroutine.
func Sequential(opts ...Option) *Dispatcher {
	return New(1, opts...)
}

// Workers returns the configured pool size.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// ChunkSize returns the chunk size used for a batch of n items.
func (d *Dispatcher) ChunkSize(n int) int {
	if d.chunk > 0 {
		return d.chunk
	}
	c := n / (d.workers * chunksPerWorker)
	if c < 1 {
		c = 1
	}
	return c
}

// Run calls fn once for every index in [0, n) and blocks until all calls have
// returned. A failing item does not stop its siblings: every failure is logged
// and the first error reported by a worker is returned after the join. Panics
// inside fn are recovered and reported as that item's error.
//
// If ctx is cancelled, workers stop claiming new chunks and Run returns
// ctx.Err() once in-flight chunks finish.
func (d *Dispatcher) Run(ctx context.Context, n int, fn WorkFunc) error {
	if n <= 0 {
		return nil
	}
	chunk := d.ChunkSize(n)
	numChunks := (n + chunk - 1) / chunk
	workers := d.workers
	if workers > numChunks {
		workers = numChunks
	}

	var failed atomic.Int64
	var cursor atomic.Int64

	worker := func() error {
		var first error
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := int(cursor.Add(int64(chunk))) - chunk
			if start >= n {
				return first
			}
			end := start + chunk
			if end > n {
				end = n
			}
			for i := start; i < end; i++ {
				if err := d.call(fn, i); err != nil {
					failed.Add(1)
					d.logger.Warn("work item failed", zap.Int("index", i), zap.Error(err))
					if first == nil {
						first = err
					}
				}
			}
		}
	}

	var err error
	if workers == 1 {
		err = worker()
	} else {
		var g errgroup.Group
		for w := 0; w < workers; w++ {
			g.Go(worker)
		}
		err = g.Wait()
	}

	if f := failed.Load(); f > 0 {
		d.logger.Warn("batch completed with failures",
			zap.Int("items", n),
			zap.Int64("failed", f),
			zap.Int("workers", workers))
	}
	return err
}

// call runs fn(i), converting a panic into an error.
func (d *Dispatcher) call(fn WorkFunc, i int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Index: i, Value: r}
		}
	}()
	if err := fn(i); err != nil {
		return fmt.Errorf("item %d: %w", i, err)
	}
	return nil
}

// PanicError reports a panic recovered while processing one item.
type PanicError struct {
	Index int
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("item %d: panic: %v", e.Index, e.Value)
}
