package featureindex

import (
	"sync"
	"testing"

	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_AppendKeepsLockstep(t *testing.T) {
	rng := testutil.NewRNG(1)
	x := New()

	a, b := model.NewID(), model.NewID()
	x.Append(rng.Descriptors(5), a)
	x.Append(rng.Descriptors(3), b)
	x.Append(nil, b)

	snap := x.Snapshot()
	require.Equal(t, 8, snap.Len())
	assert.Equal(t, uint64(2), snap.Version())
	assert.Equal(t, map[model.ID]int{a: 5, b: 3}, snap.Identities())
	assert.Equal(t, a, snap.ID(0))
	assert.Equal(t, b, snap.ID(7))
}

func TestIndex_AppendThenRemoveRestoresRows(t *testing.T) {
	rng := testutil.NewRNG(2)
	x := New()

	a, b := model.NewID(), model.NewID()
	x.Append(rng.Descriptors(4), a)
	x.Append(rng.Descriptors(6), b)
	before := x.Snapshot()

	c := model.NewID()
	x.Append(rng.Descriptors(7), c)
	assert.Equal(t, 7, x.RemoveAll(c))

	after := x.Snapshot()
	assert.True(t, before.Equal(after))
	assert.Greater(t, after.Version(), before.Version())
}

func TestIndex_RemovePreservesOrder(t *testing.T) {
	rng := testutil.NewRNG(3)
	x := New()

	a, b := model.NewID(), model.NewID()
	da := rng.Descriptors(2)
	db := rng.Descriptors(2)
	x.Append(da[:1], a)
	x.Append(db[:1], b)
	x.Append(da[1:], a)
	x.Append(db[1:], b)

	assert.Equal(t, 2, x.RemoveAll(a))

	snap := x.Snapshot()
	require.Equal(t, 2, snap.Len())
	assert.Equal(t, db[0], snap.Row(0))
	assert.Equal(t, db[1], snap.Row(1))
}

func TestIndex_RemoveAbsentIsNoop(t *testing.T) {
	rng := testutil.NewRNG(4)
	x := New()
	x.Append(rng.Descriptors(3), model.NewID())
	before := x.Snapshot()

	assert.Equal(t, 0, x.RemoveAll(model.NewID()))

	after := x.Snapshot()
	assert.True(t, before.Equal(after))
	assert.Equal(t, before.Version(), after.Version())
}

func TestIndex_SnapshotIsIsolated(t *testing.T) {
	rng := testutil.NewRNG(5)
	x := New()
	a := model.NewID()
	x.Append(rng.Descriptors(3), a)

	snap := x.Snapshot()
	x.Append(rng.Descriptors(10), model.NewID())
	x.RemoveAll(a)

	assert.Equal(t, 3, snap.Len())
	for i := 0; i < snap.Len(); i++ {
		assert.Equal(t, a, snap.ID(i))
	}
}

func TestIndex_ConcurrentMutationInvariant(t *testing.T) {
	rng := testutil.NewRNG(6)
	x := New()

	ids := make([]model.ID, 8)
	for i := range ids {
		ids[i] = model.NewID()
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		descs := rng.Descriptors(10 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < 20; r++ {
				x.Append(descs, id)
				x.RemoveAll(id)
			}
			x.Append(descs, id)
		}()
	}

	// Concurrent readers must always observe a consistent snapshot.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := 0; r < 200; r++ {
			snap := x.Snapshot()
			counts := snap.Identities()
			total := 0
			for _, n := range counts {
				total += n
			}
			assert.Equal(t, snap.Len(), total)
		}
	}()

	wg.Wait()
	<-done

	snap := x.Snapshot()
	counts := snap.Identities()
	for i, id := range ids {
		assert.Equal(t, 10+i, counts[id])
	}
}
