// Package generation builds and publishes immutable, versioned search
// structures over featureindex snapshots.
//
// A Generation owns a pool of matchers trained on one snapshot. The Manager
// keeps the current generation behind an atomic pointer: readers take it in a
// single load and pin it with a reference count, writers build a complete
// replacement and publish it with one compare-and-swap. A replaced
// generation lives on until its last lease is released.
package generation

import (
	"sync/atomic"

	"github.com/hupe1980/exhibitid/internal/featureindex"
	"github.com/hupe1980/exhibitid/internal/matcher"
	"github.com/hupe1980/exhibitid/internal/pool"
	"github.com/hupe1980/exhibitid/model"
)

// Generation is an immutable trained search structure built from one
// snapshot. Its matcher pool is the only mutable part and is internally
// synchronized.
type Generation struct {
	version  uint64
	snapshot *featureindex.Snapshot
	trained  *matcher.Trained
	matchers *pool.Pool[*matcher.Matcher]

	refs    atomic.Int64
	onClose atomic.Value // stores func(*Generation)
}

func newGeneration(version uint64, snap *featureindex.Snapshot, trained *matcher.Trained, matchers *pool.Pool[*matcher.Matcher]) *Generation {
	g := &Generation{
		version:  version,
		snapshot: snap,
		trained:  trained,
		matchers: matchers,
	}
	g.refs.Store(1) // Held by the manager while current.
	var f func(*Generation)
	g.onClose.Store(f)
	return g
}

// Version returns the generation's version. Versions follow the index
// version of the snapshot the generation was built from.
func (g *Generation) Version() uint64 { return g.version }

// Rows returns the number of searchable rows.
func (g *Generation) Rows() int { return g.snapshot.Len() }

// Snapshot returns the snapshot the generation was trained on.
func (g *Generation) Snapshot() *featureindex.Snapshot { return g.snapshot }

// IDOf maps a row of this generation to its owning identity.
func (g *Generation) IDOf(row int) model.ID { return g.snapshot.ID(row) }

// tryIncRef increments the reference count unless the generation is
// already finalized.
func (g *Generation) tryIncRef() bool {
	for {
		refs := g.refs.Load()
		if refs <= 0 {
			return false
		}
		if g.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

func (g *Generation) decRef() {
	if g.refs.Add(-1) == 0 {
		if f := g.onClose.Load().(func(*Generation)); f != nil {
			f(g)
		}
	}
}

// Lease is a matcher borrowed from a specific generation. It must be
// released exactly once.
type Lease struct {
	gen      *Generation
	matcher  *matcher.Matcher
	released atomic.Bool
}

// Generation returns the generation the lease pins.
func (l *Lease) Generation() *Generation { return l.gen }

// Matcher returns the borrowed matcher.
func (l *Lease) Matcher() *matcher.Matcher { return l.matcher }

// Release returns the matcher to the pool it came from and unpins the
// generation. Calling Release more than once is a no-op.
func (l *Lease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	l.matcher.Reset()
	l.gen.matchers.Release(l.matcher)
	l.gen.decRef()
}
