package vocab

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/featbench/internal/dispatch"
	"github.com/matsen/featbench/internal/tokenize"
)

func TestBuildExample(t *testing.T) {
	texts := []string{"check now!", "bob said now!!"}

	v, stats, err := Build(context.Background(), texts, 10, dispatch.New(4))
	require.NoError(t, err)

	assert.Equal(t, []string{"now", "check", "bob", "said"}, v.Tokens())
	slot, ok := v.Index("now")
	require.True(t, ok)
	assert.Equal(t, 0, slot)
	assert.Equal(t, 2, v.Entries(1)[0].Count)

	assert.Equal(t, 5, stats.TotalTokens)
	assert.Equal(t, 4, stats.DistinctTokens)
	assert.Equal(t, 4, stats.Size)
}

func TestBuildTieBreakFirstSeen(t *testing.T) {
	texts := []string{"zeta alpha", "mid zeta", "alpha omega"}
	v, _, err := Build(context.Background(), texts, 10, dispatch.New(3))
	require.NoError(t, err)
	// zeta(2, first 0:0) alpha(2, first 0:1) mid(1, 1:0) omega(1, 2:1)
	assert.Equal(t, []string{"zeta", "alpha", "mid", "omega"}, v.Tokens())
}

func randomCorpus(r *rand.Rand, n int) []string {
	words := make([]string, 300)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	texts := make([]string, n)
	for i := range texts {
		k := r.Intn(20)
		var buf bytes.Buffer
		for j := 0; j < k; j++ {
			// Skewed distribution so both frequent words and many ties appear.
			idx := r.Intn(len(words)) * r.Intn(len(words)) / len(words)
			buf.WriteString(words[idx])
			buf.WriteString(" ")
		}
		texts[i] = buf.String()
	}
	return texts
}

func TestBuildDeterministicAcrossWorkers(t *testing.T) {
	texts := randomCorpus(rand.New(rand.NewSource(7)), 2000)

	want, _, err := Build(context.Background(), texts, 100, dispatch.Sequential())
	require.NoError(t, err)

	for _, workers := range []int{2, 3, 8, 13, 32} {
		for rep := 0; rep < 3; rep++ {
			got, _, err := Build(context.Background(), texts, 100, dispatch.New(workers))
			require.NoError(t, err)
			require.True(t, want.Equal(got), "workers=%d rep=%d", workers, rep)
		}
	}
}

func TestBuildSizeBound(t *testing.T) {
	texts := randomCorpus(rand.New(rand.NewSource(11)), 500)
	distinct := map[string]bool{}
	for _, text := range texts {
		for _, tok := range tokenize.Tokenize(text) {
			distinct[tok] = true
		}
	}

	for _, m := range []int{0, 1, 10, len(distinct) - 1, len(distinct), len(distinct) + 50} {
		v, _, err := Build(context.Background(), texts, m, dispatch.New(4))
		require.NoError(t, err)
		assert.Equal(t, min(m, len(distinct)), v.Size(), "max=%d", m)

		seen := map[string]bool{}
		for i, tok := range v.Tokens() {
			assert.False(t, seen[tok], "duplicate token %q", tok)
			seen[tok] = true
			slot, ok := v.Index(tok)
			require.True(t, ok)
			assert.Equal(t, i, slot)
		}
	}
}

func TestBuildCountsDescending(t *testing.T) {
	texts := randomCorpus(rand.New(rand.NewSource(3)), 800)
	v, _, err := Build(context.Background(), texts, 50, dispatch.New(8))
	require.NoError(t, err)
	entries := v.Entries(0)
	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i-1].Count, entries[i].Count)
	}
}

func TestBuildEmptyAndErrors(t *testing.T) {
	v, stats, err := Build(context.Background(), nil, 10, dispatch.New(4))
	require.NoError(t, err)
	assert.Equal(t, 0, v.Size())
	assert.Equal(t, 0, stats.Shards)

	v, _, err = Build(context.Background(), []string{"", "  ", "!!"}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Size())

	_, _, err = Build(context.Background(), []string{"a"}, -1, nil)
	assert.ErrorIs(t, err, ErrNegativeSize)
}

func TestShardRanges(t *testing.T) {
	assert.Nil(t, shardRanges(0, 4))
	assert.Equal(t, [][2]int{{0, 3}}, shardRanges(3, 1))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, shardRanges(2, 8))
	assert.Equal(t, [][2]int{{0, 4}, {4, 7}, {7, 10}}, shardRanges(10, 3))
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]string{"a", "b", "a"}, nil)
	assert.Error(t, err)

	_, err = New([]string{"a", ""}, nil)
	assert.Error(t, err)

	_, err = New([]string{"a"}, []int{1, 2})
	assert.Error(t, err)

	v, err := New([]string{"x", "y"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Size())
	assert.Equal(t, "y", v.Token(1))
}

func TestWriteRead(t *testing.T) {
	v, _, err := Build(context.Background(), []string{"b a b", "c b a"}, 10, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, v.Write(&buf))
	assert.Equal(t, "b\t3\na\t2\nc\t1\n", buf.String())

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.True(t, v.Equal(got))
	assert.Equal(t, v.Entries(0), got.Entries(0))

	_, err = Read(bytes.NewBufferString("nocount\n"))
	assert.Error(t, err)
}
