// Package bench times the sequential and parallel strategies of the
// clean -> vocabulary -> encode pipeline over a series of batch sizes.
package bench

import (
	"time"

	"github.com/matsen/featbench/internal/encode"
	"github.com/matsen/featbench/internal/textclean"
)

// Stage names a pipeline step.
type Stage string

const (
	StageClean  Stage = "clean"
	StageVocab  Stage = "vocab"
	StageEncode Stage = "encode"
)

// Stages lists the pipeline steps in execution order.
var Stages = []Stage{StageClean, StageVocab, StageEncode}

// Strategy names an execution strategy.
const (
	StrategySequential = "sequential"
	StrategyParallel   = "parallel"
)

// Timing holds the wall time of one stage under both strategies.
type Timing struct {
	Stage      Stage         `json:"stage"`
	Sequential time.Duration `json:"sequential_ns"`
	Parallel   time.Duration `json:"parallel_ns"`
}

// Speedup returns Sequential/Parallel, or 0 when the parallel time is zero.
func (t Timing) Speedup() float64 {
	if t.Parallel <= 0 {
		return 0
	}
	return float64(t.Sequential) / float64(t.Parallel)
}

// SizeReport is the outcome of benchmarking one batch size.
type SizeReport struct {
	Requested int               `json:"requested"`
	BatchSize int               `json:"batch_size"`
	VocabSize int               `json:"vocab_size"`
	Cleaning  textclean.Summary `json:"cleaning"`
	Timings   []Timing          `json:"timings"`
	Features  encode.Stats      `json:"features"`
	Verified  bool              `json:"verified"`
	Files     []string          `json:"files,omitempty"`
}

// Timing returns the timing for stage s.
func (r SizeReport) Timing(s Stage) (Timing, bool) {
	for _, t := range r.Timings {
		if t.Stage == s {
			return t, true
		}
	}
	return Timing{}, false
}

// Total sums all stages.
func (r SizeReport) Total() Timing {
	total := Timing{Stage: "total"}
	for _, t := range r.Timings {
		total.Sequential += t.Sequential
		total.Parallel += t.Parallel
	}
	return total
}

// Report is the outcome of one benchmark run.
type Report struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	Input       string        `json:"input,omitempty"`
	Fingerprint string        `json:"fingerprint"`
	Records     int           `json:"records"`
	Workers     int           `json:"workers"`
	MaxVocab    int           `json:"max_vocab"`
	Sizes       []SizeReport  `json:"sizes"`
	Duration    time.Duration `json:"duration_ns"`
}
