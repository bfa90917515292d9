package bench

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/featbench/internal/config"
	"github.com/matsen/featbench/internal/corpus"
	"github.com/matsen/featbench/internal/featstore"
)

func sampleRecords(n int) []corpus.Record {
	texts := []string{
		"Check http://x.co now! @bob",
		"bob said NOW!!",
		"Loving the new update, great work @dev www.example.com",
		"",
		"worst. patch. ever?",
		"The game crashes on startup #bug",
	}
	recs := make([]corpus.Record, n)
	for i := range recs {
		recs[i] = corpus.Record{
			ID:    i + 1,
			Text:  fmt.Sprintf("%s %d", texts[i%len(texts)], i%7),
			Label: corpus.LabelNeutral,
		}
	}
	recs[3].Text = ""
	return recs
}

func TestClampBatchSizes(t *testing.T) {
	assert.Equal(t, []int{100, 250, 250}, ClampBatchSizes([]int{100, 1000, 10000}, 250))
	assert.Equal(t, []int{}, ClampBatchSizes(nil, 10))
}

func TestRun_EmptyCorpus(t *testing.T) {
	r := NewRunner(Options{Workers: 4, MaxVocab: 10, BatchSizes: []int{10}}, nil)
	_, err := r.Run(context.Background(), "", nil)
	assert.ErrorIs(t, err, corpus.ErrEmptyCorpus)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Options{
		Workers:    4,
		MaxVocab:   20,
		BatchSizes: []int{10, 50, 1000},
		OutputDir:  dir,
		Persist:    true,
		Verify:     true,
	}, nil)

	var calls [][2]int
	r.SetProgressReporter(ProgressFunc(func(current, total int) {
		calls = append(calls, [2]int{current, total})
	}))

	recs := sampleRecords(120)
	report, err := r.Run(context.Background(), "train.csv", recs)
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "train.csv", report.Input)
	assert.Equal(t, 120, report.Records)
	assert.Equal(t, 4, report.Workers)
	assert.Equal(t, corpus.Fingerprint(recs), report.Fingerprint)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, calls)

	require.Len(t, report.Sizes, 3)
	assert.Equal(t, 10, report.Sizes[0].BatchSize)
	assert.Equal(t, 120, report.Sizes[2].BatchSize)
	assert.Equal(t, 1000, report.Sizes[2].Requested)

	for _, sr := range report.Sizes {
		assert.True(t, sr.Verified)
		assert.LessOrEqual(t, sr.VocabSize, 20)
		assert.Equal(t, sr.BatchSize, sr.Features.Count)
		assert.Equal(t, sr.VocabSize, sr.Features.Dim)
		require.Len(t, sr.Timings, len(Stages))
		for i, stage := range Stages {
			assert.Equal(t, stage, sr.Timings[i].Stage)
		}
		assert.Equal(t, 1, sr.Cleaning.Empty)

		require.Len(t, sr.Files, 2)
		seq, err := featstore.Open(sr.Files[0])
		require.NoError(t, err)
		par, err := featstore.Open(sr.Files[1])
		require.NoError(t, err)
		assert.True(t, seq.Equal(par))
		assert.Equal(t, sr.BatchSize, seq.Count)
	}

	_, err = os.Stat(filepath.Join(dir, featstore.FileName(50, StrategyParallel)))
	assert.NoError(t, err)
}

func TestRun_SkipPersist(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Options{Workers: 2, MaxVocab: 5, BatchSizes: []int{6}, OutputDir: dir}, nil)
	report, err := r.Run(context.Background(), "", sampleRecords(6))
	require.NoError(t, err)

	assert.Empty(t, report.Sizes[0].Files)
	assert.False(t, report.Sizes[0].Verified)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_ZeroVocab(t *testing.T) {
	r := NewRunner(Options{Workers: 3, MaxVocab: 0, BatchSizes: []int{6}, Verify: true}, nil)
	report, err := r.Run(context.Background(), "", sampleRecords(6))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sizes[0].VocabSize)
	assert.Equal(t, 6, report.Sizes[0].Features.EmptyRows)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(Options{Workers: 2, MaxVocab: 5, BatchSizes: []int{6}}, nil)
	_, err := r.Run(ctx, "", sampleRecords(6))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimingSpeedup(t *testing.T) {
	assert.InDelta(t, 2.0, Timing{Sequential: 2 * time.Second, Parallel: time.Second}.Speedup(), 1e-9)
	assert.Zero(t, Timing{Sequential: time.Second}.Speedup())

	sr := SizeReport{Timings: []Timing{
		{Stage: StageClean, Sequential: 3, Parallel: 1},
		{Stage: StageEncode, Sequential: 5, Parallel: 2},
	}}
	total := sr.Total()
	assert.Equal(t, time.Duration(8), total.Sequential)
	assert.Equal(t, time.Duration(3), total.Parallel)

	got, ok := sr.Timing(StageEncode)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(5), got.Sequential)
	_, ok = sr.Timing(StageVocab)
	assert.False(t, ok)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SkipPersist = true
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, cfg.Workers, opts.Workers)
	assert.Equal(t, cfg.BatchSizes, opts.BatchSizes)
	assert.False(t, opts.Persist)
	assert.True(t, opts.Verify)
}
