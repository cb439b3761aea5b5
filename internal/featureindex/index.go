// Package featureindex implements the in-memory structure-of-arrays that maps
// descriptor rows to exhibit identities.
//
// Rows and identities live in one Index and are only ever mutated together,
// so the row count always equals the identity count. Readers never touch the
// Index directly: they take an immutable Snapshot.
//
// Appends write past the end of the shared backing arrays, which no
// snapshot can see because snapshots are capped slice views. Removal
// compacts into fresh arrays, leaving older snapshots untouched.
package featureindex

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/exhibitid/model"
)

// Index is the mutable feature index. All mutation is serialized by a single
// writer lock.
type Index struct {
	mu      sync.Mutex
	rows    []model.Descriptor
	ids     []model.ID
	version uint64
}

// New creates an empty index.
func New() *Index {
	return &Index{}
}

// Append adds descriptors owned by id. The cost is proportional to the number
// of rows added (amortized).
func (x *Index) Append(descs []model.Descriptor, id model.ID) {
	if len(descs) == 0 {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.rows = append(x.rows, descs...)
	for range descs {
		x.ids = append(x.ids, id)
	}
	x.version++
}

// RemoveAll removes every row owned by id and returns how many were removed.
// Removing an absent identity is a no-op and returns 0.
func (x *Index) RemoveAll(id model.ID) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	victims := roaring.New()
	for i, owner := range x.ids {
		if owner == id {
			victims.Add(uint32(i))
		}
	}

	removed := int(victims.GetCardinality())
	if removed == 0 {
		return 0
	}

	keep := len(x.rows) - removed
	rows := make([]model.Descriptor, 0, keep)
	ids := make([]model.ID, 0, keep)
	for i := range x.rows {
		if victims.Contains(uint32(i)) {
			continue
		}
		rows = append(rows, x.rows[i])
		ids = append(ids, x.ids[i])
	}

	x.rows = rows
	x.ids = ids
	x.version++
	return removed
}

// Len returns the current number of rows.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.rows)
}

// Version returns the mutation counter. It increases by one per effective
// mutation.
func (x *Index) Version() uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.version
}

// Snapshot returns a point-in-time immutable view of the index.
func (x *Index) Snapshot() *Snapshot {
	x.mu.Lock()
	defer x.mu.Unlock()

	n := len(x.rows)
	return &Snapshot{
		rows:    x.rows[:n:n],
		ids:     x.ids[:n:n],
		version: x.version,
	}
}
