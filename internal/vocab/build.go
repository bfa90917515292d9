package vocab

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/matsen/featbench/internal/dispatch"
	"github.com/matsen/featbench/internal/tokenize"
)

// ErrNegativeSize is returned when a negative maximum size is requested.
var ErrNegativeSize = errors.New("vocabulary size must not be negative")

// shardsPerWorker sets how finely the corpus is split for counting.
const shardsPerWorker = 4

// position locates a token's first occurrence in the corpus.
type position struct {
	text int
	tok  int
}

func (p position) before(o position) bool {
	if p.text != o.text {
		return p.text < o.text
	}
	return p.tok < o.tok
}

type tokenStat struct {
	count int
	first position
}

// BuildStats summarises a vocabulary build.
type BuildStats struct {
	Texts          int           `json:"texts"`
	Shards         int           `json:"shards"`
	TotalTokens    int           `json:"total_tokens"`
	DistinctTokens int           `json:"distinct_tokens"`
	Size           int           `json:"size"`
	CountDuration  time.Duration `json:"count_duration"`
	SelectDuration time.Duration `json:"select_duration"`
}

// Build counts tokens across texts on d and keeps the maxSize most frequent.
//
// Counting runs in parallel over contiguous shards, each with a private
// accumulator; the accumulators are merged on the calling goroutine after all
// shards finish. Tokens are ranked by descending count, with ties broken by
// first occurrence in corpus order, so the result does not depend on the
// number of workers or on scheduling.
func Build(ctx context.Context, texts []string, maxSize int, d *dispatch.Dispatcher) (*Vocabulary, *BuildStats, error) {
	if maxSize < 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrNegativeSize, maxSize)
	}
	if d == nil {
		d = dispatch.Sequential()
	}
	stats := &BuildStats{Texts: len(texts)}

	countStart := time.Now()
	shards := shardRanges(len(texts), d.Workers()*shardsPerWorker)
	local := make([]map[string]tokenStat, len(shards))

	err := d.Run(ctx, len(shards), func(s int) error {
		local[s] = countShard(texts, shards[s])
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("counting tokens: %w", err)
	}

	merged := merge(local)
	stats.Shards = len(shards)
	stats.CountDuration = time.Since(countStart)

	selectStart := time.Now()
	v := selectTop(merged, maxSize)
	stats.SelectDuration = time.Since(selectStart)

	stats.DistinctTokens = len(merged)
	for _, st := range merged {
		stats.TotalTokens += st.count
	}
	stats.Size = v.Size()
	return v, stats, nil
}

// shardRanges splits [0, n) into at most want contiguous, non-empty ranges.
func shardRanges(n, want int) [][2]int {
	if n == 0 {
		return nil
	}
	if want < 1 {
		want = 1
	}
	if want > n {
		want = n
	}
	ranges := make([][2]int, want)
	base, extra := n/want, n%want
	lo := 0
	for i := range ranges {
		size := base
		if i < extra {
			size++
		}
		ranges[i] = [2]int{lo, lo + size}
		lo += size
	}
	return ranges
}

func countShard(texts []string, r [2]int) map[string]tokenStat {
	counts := make(map[string]tokenStat)
	for t := r[0]; t < r[1]; t++ {
		pos := 0
		tokenize.Each(texts[t], func(tok string) {
			st, ok := counts[tok]
			if !ok {
				st.first = position{text: t, tok: pos}
			}
			st.count++
			counts[tok] = st
			pos++
		})
	}
	return counts
}

// merge folds shard accumulators into one map. It must only run after every
// shard has finished.
func merge(local []map[string]tokenStat) map[string]tokenStat {
	size := 0
	for _, m := range local {
		if len(m) > size {
			size = len(m)
		}
	}
	merged := make(map[string]tokenStat, size)
	for _, m := range local {
		for tok, st := range m {
			cur, ok := merged[tok]
			if !ok {
				merged[tok] = st
				continue
			}
			cur.count += st.count
			if st.first.before(cur.first) {
				cur.first = st.first
			}
			merged[tok] = cur
		}
	}
	return merged
}

type ranked struct {
	token string
	tokenStat
}

func selectTop(merged map[string]tokenStat, maxSize int) *Vocabulary {
	all := make([]ranked, 0, len(merged))
	for tok, st := range merged {
		all = append(all, ranked{token: tok, tokenStat: st})
	}
	slices.SortFunc(all, func(a, b ranked) int {
		if a.count != b.count {
			return b.count - a.count
		}
		if a.first.before(b.first) {
			return -1
		}
		if b.first.before(a.first) {
			return 1
		}
		return 0
	})

	n := min(maxSize, len(all))
	v := &Vocabulary{
		tokens: make([]string, n),
		counts: make([]int, n),
		index:  make(map[string]int, n),
	}
	for i := 0; i < n; i++ {
		v.tokens[i] = all[i].token
		v.counts[i] = all[i].count
		v.index[all[i].token] = i
	}
	return v
}
