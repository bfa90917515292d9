// Package encode turns cleaned texts into binary bag-of-words feature
// vectors over a fixed vocabulary.
package encode

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matsen/featbench/internal/dispatch"
	"github.com/matsen/featbench/internal/logging"
	"github.com/matsen/featbench/internal/tokenize"
	"github.com/matsen/featbench/internal/vocab"
)

// progressEvery is the sampling interval for progress log lines.
const progressEvery = 1000

// Encoder maps texts to presence vectors over one vocabulary.
type Encoder struct {
	vocab      *vocab.Vocabulary
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

// NewEncoder creates an Encoder. d is used by the parallel path; nil falls
// back to a pool of dispatch.DefaultWorkers.
func NewEncoder(v *vocab.Vocabulary, d *dispatch.Dispatcher, logger *zap.Logger) *Encoder {
	if d == nil {
		d = dispatch.New(dispatch.DefaultWorkers)
	}
	return &Encoder{vocab: v, dispatcher: d, logger: logging.OrNop(logger)}
}

// Encode runs the parallel path when parallel is true, else the sequential
// one. Both produce bit-identical output.
func (e *Encoder) Encode(ctx context.Context, texts []string, parallel bool) (Batch, error) {
	if parallel {
		return e.EncodeParallel(ctx, texts)
	}
	return e.EncodeSequential(ctx, texts)
}

// EncodeSequential encodes texts on the calling goroutine.
func (e *Encoder) EncodeSequential(ctx context.Context, texts []string) (Batch, error) {
	return e.encode(ctx, texts, dispatch.Sequential(dispatch.WithLogger(e.logger)))
}

// EncodeParallel encodes texts on the encoder's dispatcher. Each row is
// written only by the worker that owns its index.
func (e *Encoder) EncodeParallel(ctx context.Context, texts []string) (Batch, error) {
	return e.encode(ctx, texts, e.dispatcher)
}

func (e *Encoder) encode(ctx context.Context, texts []string, d *dispatch.Dispatcher) (Batch, error) {
	out := NewBatch(len(texts), e.vocab.Size())
	progress := rate.Sometimes{Every: progressEvery}

	err := d.Run(ctx, len(texts), func(i int) error {
		e.encodeInto(out.Row(i), texts[i])
		progress.Do(func() {
			e.logger.Debug("encoding progress", zap.Int("index", i), zap.Int("total", len(texts)))
		})
		return nil
	})
	if err != nil {
		return Batch{}, fmt.Errorf("encoding batch: %w", err)
	}
	return out, nil
}

// encodeInto sets row[slot] = 1 for every in-vocabulary token of text.
// Out-of-vocabulary tokens are ignored.
func (e *Encoder) encodeInto(row []float32, text string) {
	if len(row) == 0 {
		return
	}
	tokenize.Each(text, func(tok string) {
		if slot, ok := e.vocab.Index(tok); ok {
			row[slot] = 1
		}
	})
}
