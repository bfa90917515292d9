package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCoercesWorkers(t *testing.T) {
	assert.Equal(t, 1, New(0).Workers())
	assert.Equal(t, 1, New(-3).Workers())
	assert.Equal(t, 8, New(8).Workers())
	assert.Equal(t, 1, Sequential().Workers())
}

func TestChunkSize(t *testing.T) {
	d := New(4)
	assert.Equal(t, 1, d.ChunkSize(3))
	assert.Equal(t, 6, d.ChunkSize(100))

	fixed := New(4, WithChunkSize(10))
	assert.Equal(t, 10, fixed.ChunkSize(3))
}

func TestRunVisitsEveryIndexOnce(t *testing.T) {
	cases := []struct {
		n, workers, chunk int
	}{
		{0, 4, 0},
		{1, 4, 0},
		{7, 1, 0},
		{100, 3, 0},
		{1000, 8, 0},
		{1000, 8, 1},
		{1001, 16, 37},
		{5, 32, 0},
	}

	for _, c := range cases {
		d := New(c.workers, WithChunkSize(c.chunk))
		hits := make([]int32, c.n)
		err := d.Run(context.Background(), c.n, func(i int) error {
			atomic.AddInt32(&hits[i], 1)
			return nil
		})
		require.NoError(t, err)
		for i, h := range hits {
			require.Equalf(t, int32(1), h, "n=%d workers=%d index %d", c.n, c.workers, i)
		}
	}
}

func TestRunWritesLandAtOwnSlot(t *testing.T) {
	const n = 5000
	out := make([]int, n)
	err := New(8).Run(context.Background(), n, func(i int) error {
		out[i] = i * i
		return nil
	})
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	boom := errors.New("boom")
	const n = 200
	var done atomic.Int64

	err := New(4).Run(context.Background(), n, func(i int) error {
		if i%10 == 0 {
			return boom
		}
		done.Add(1)
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(n-n/10), done.Load())
}

func TestRunRecoversPanics(t *testing.T) {
	var done atomic.Int64
	err := New(3).Run(context.Background(), 30, func(i int) error {
		if i == 17 {
			panic("bad item")
		}
		done.Add(1)
		return nil
	})

	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 17, perr.Index)
	assert.Equal(t, int64(29), done.Load())
}

func TestRunSequentialIsOrdered(t *testing.T) {
	var order []int
	err := Sequential().Run(context.Background(), 50, func(i int) error {
		order = append(order, i)
		return nil
	})
	require.NoError(t, err)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	err := New(4).Run(ctx, 100, func(i int) error {
		calls.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), calls.Load())
}
