// Package matcher implements the exact Hamming k-nearest-neighbor search
// structure used by generations.
//
// Training packs a featureindex snapshot into a contiguous matrix of 64-bit
// words. The trained matrix is immutable and shared; each Matcher built from
// it owns only its scratch buffers, so one matrix backs a whole pool.
package matcher

import (
	"context"
	"encoding/binary"
	"errors"
	"math/bits"
	"runtime"

	"github.com/hupe1980/exhibitid/internal/featureindex"
	"github.com/hupe1980/exhibitid/model"
	"golang.org/x/sync/errgroup"
)

const wordsPerRow = model.DescriptorSize / 8

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

// Neighbor is one search hit: a row of the trained snapshot and its Hamming
// distance to the query.
type Neighbor struct {
	Row      int
	Distance int
}

// TrainOptions tunes training.
type TrainOptions struct {
	// ChunkRows is the number of rows packed per worker task. Defaults to 4096.
	ChunkRows int
	// Workers limits concurrent packing tasks. Defaults to GOMAXPROCS.
	Workers int
}

// Trained is an immutable packed descriptor matrix.
type Trained struct {
	words []uint64
	rows  int
}

// Train packs every row of snap.
func Train(ctx context.Context, snap *featureindex.Snapshot, opts TrainOptions) (*Trained, error) {
	if opts.ChunkRows <= 0 {
		opts.ChunkRows = 4096
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	n := snap.Len()
	t := &Trained{
		words: make([]uint64, n*wordsPerRow),
		rows:  n,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for start := 0; start < n; start += opts.ChunkRows {
		end := min(start+opts.ChunkRows, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				packRow(t.words[i*wordsPerRow:(i+1)*wordsPerRow], snap.Row(i))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t, nil
}

// Rows returns the number of trained rows.
func (t *Trained) Rows() int { return t.rows }

// SizeBytes returns the memory held by the packed matrix.
func (t *Trained) SizeBytes() int64 { return int64(len(t.words)) * 8 }

// NewMatcher returns a matcher searching this matrix.
func (t *Trained) NewMatcher() *Matcher {
	return &Matcher{trained: t}
}

func packRow(dst []uint64, d model.Descriptor) {
	for w := range dst {
		dst[w] = binary.LittleEndian.Uint64(d[w*8:])
	}
}

// Matcher performs kNN searches over a Trained matrix. A Matcher is not safe
// for concurrent use; pool it.
type Matcher struct {
	trained *Trained
	query   [wordsPerRow]uint64
	best    []Neighbor
}

// Rows returns the number of rows the matcher searches.
func (m *Matcher) Rows() int { return m.trained.rows }

// Reset clears scratch state left by a previous search.
func (m *Matcher) Reset() {
	m.query = [wordsPerRow]uint64{}
	m.best = m.best[:0]
}

// KNN returns, for every query, its k nearest rows ordered by
// (distance, row). Queries against an empty matrix yield empty lists.
// The returned slices are owned by the caller.
func (m *Matcher) KNN(queries []model.Descriptor, k int) ([][]Neighbor, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	out := make([][]Neighbor, len(queries))
	if m.trained.rows == 0 {
		return out, nil
	}

	kk := min(k, m.trained.rows)
	flat := make([]Neighbor, 0, len(queries)*kk)

	for qi, q := range queries {
		packRow(m.query[:], q)
		m.best = m.best[:0]

		words := m.trained.words
		for row := 0; row < m.trained.rows; row++ {
			base := row * wordsPerRow
			dist := bits.OnesCount64(m.query[0]^words[base]) +
				bits.OnesCount64(m.query[1]^words[base+1]) +
				bits.OnesCount64(m.query[2]^words[base+2]) +
				bits.OnesCount64(m.query[3]^words[base+3])
			m.offer(Neighbor{Row: row, Distance: dist}, kk)
		}

		start := len(flat)
		flat = append(flat, m.best...)
		out[qi] = flat[start:len(flat):len(flat)]
	}

	return out, nil
}

// offer inserts n into the sorted best list, keeping at most k entries.
// Rows are visited in ascending order, so equal distances keep the lower row.
func (m *Matcher) offer(n Neighbor, k int) {
	if len(m.best) == k && n.Distance >= m.best[k-1].Distance {
		return
	}
	if len(m.best) < k {
		m.best = append(m.best, n)
	} else {
		m.best[k-1] = n
	}
	for i := len(m.best) - 1; i > 0 && m.best[i].Distance < m.best[i-1].Distance; i-- {
		m.best[i], m.best[i-1] = m.best[i-1], m.best[i]
	}
}
