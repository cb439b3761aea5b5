// Package storetest is a conformance suite for store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
	"github.com/hupe1980/exhibitid/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty, unconnected store.
type Factory func(t *testing.T) store.Store

// Run exercises every store.Store operation against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertGetDelete", func(t *testing.T) { testInsertGetDelete(t, newStore) })
	t.Run("AssignsIdentity", func(t *testing.T) { testAssignsIdentity(t, newStore) })
	t.Run("RejectsCallerIdentity", func(t *testing.T) { testRejectsCallerIdentity(t, newStore) })
	t.Run("DeletedIdentityStaysDeleted", func(t *testing.T) { testDeletedIdentityStaysDeleted(t, newStore) })
	t.Run("PaginationCompleteness", func(t *testing.T) { testPagination(t, newStore) })
	t.Run("EmptyScan", func(t *testing.T) { testEmptyScan(t, newStore) })
	t.Run("WithoutImages", func(t *testing.T) { testWithoutImages(t, newStore) })
	t.Run("DeleteMissing", func(t *testing.T) { testDeleteMissing(t, newStore) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newStore) })
}

func connected(t *testing.T, newStore Factory) store.Store {
	t.Helper()
	s := newStore(t)
	require.NoError(t, s.Connect(t.Context()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(rng *testutil.RNG, title string, n int) model.Record {
	return model.Record{
		Title:       title,
		Description: title + " description",
		Image:       []byte("image:" + title),
		Descriptors: rng.Descriptors(n),
	}
}

func testInsertGetDelete(t *testing.T, newStore Factory) {
	ctx := t.Context()
	s := connected(t, newStore)
	rng := testutil.NewRNG(1)

	rec := record(rng, "Vase", 40)
	id, err := s.Insert(ctx, rec)
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, rec.Description, got.Description)
	assert.Equal(t, rec.Image, got.Image)
	assert.Equal(t, rec.Descriptors, got.Descriptors)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testAssignsIdentity(t *testing.T, newStore Factory) {
	ctx := t.Context()
	s := connected(t, newStore)
	rng := testutil.NewRNG(2)

	a, err := s.Insert(ctx, record(rng, "a", 1))
	require.NoError(t, err)
	b, err := s.Insert(ctx, record(rng, "b", 1))
	require.NoError(t, err)

	assert.NotEqual(t, model.NilID, a)
	assert.NotEqual(t, a, b)
}

func testRejectsCallerIdentity(t *testing.T, newStore Factory) {
	ctx := t.Context()
	s := connected(t, newStore)
	rng := testutil.NewRNG(5)

	existing, err := s.Insert(ctx, record(rng, "original", 2))
	require.NoError(t, err)

	rec := record(rng, "impostor", 3)
	rec.ID = existing
	_, err = s.Insert(ctx, rec)
	require.ErrorIs(t, err, store.ErrIdentityGiven)

	rec.ID = model.NewID()
	_, err = s.Insert(ctx, rec)
	require.ErrorIs(t, err, store.ErrIdentityGiven)

	got, err := s.Get(ctx, existing)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Title)
	assert.Equal(t, []byte("image:original"), got.Image)
	assert.Len(t, got.Descriptors, 2)

	_, err = s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeletedIdentityStaysDeleted(t *testing.T, newStore Factory) {
	ctx := t.Context()
	s := connected(t, newStore)
	rng := testutil.NewRNG(6)

	rec := record(rng, "vase", 4)
	deleted, err := s.Insert(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, deleted))

	again, err := s.Insert(ctx, rec)
	require.NoError(t, err)
	assert.NotEqual(t, deleted, again)

	_, err = s.Get(ctx, deleted)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testPagination(t *testing.T, newStore Factory) {
	ctx := t.Context()
	s := connected(t, newStore)
	rng := testutil.NewRNG(3)

	want := make(map[model.ID]int)
	for i := 0; i < 23; i++ {
		id, err := s.Insert(ctx, record(rng, "exhibit", 1+i%4))
		require.NoError(t, err)
		want[id] = 1 + i%4
	}

	for _, pageSize := range []int{1, 5, 23, 100} {
		seen := make(map[model.ID]int)
		pages := 0
		var cursor model.Cursor
		for {
			chunk, err := s.Scan(ctx, cursor, store.WithPageSize(pageSize))
			require.NoError(t, err)
			require.LessOrEqual(t, len(chunk.Records), pageSize)
			pages++
			for _, rec := range chunk.Records {
				_, dup := seen[rec.ID]
				require.False(t, dup, "record %s returned twice", rec.ID)
				seen[rec.ID] = len(rec.Descriptors)
			}
			if chunk.Last {
				break
			}
			require.NotEmpty(t, chunk.Next)
			cursor = chunk.Next
			require.Less(t, pages, 100, "scan does not terminate")
		}
		assert.Equal(t, want, seen, "page size %d", pageSize)
	}

	var walked int
	require.NoError(t, store.Walk(ctx, s, func(model.Record) error {
		walked++
		return nil
	}, store.WithPageSize(4)))
	assert.Equal(t, len(want), walked)

	stop := errors.New("stop")
	err := store.Walk(ctx, s, func(model.Record) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func testEmptyScan(t *testing.T, newStore Factory) {
	s := connected(t, newStore)
	chunk, err := s.Scan(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, chunk.Records)
	assert.True(t, chunk.Last)
}

func testWithoutImages(t *testing.T, newStore Factory) {
	ctx := t.Context()
	s := connected(t, newStore)
	rng := testutil.NewRNG(4)

	_, err := s.Insert(ctx, record(rng, "painting", 3))
	require.NoError(t, err)

	chunk, err := s.Scan(ctx, nil, store.WithoutImages())
	require.NoError(t, err)
	require.Len(t, chunk.Records, 1)
	assert.Empty(t, chunk.Records[0].Image)
	assert.Len(t, chunk.Records[0].Descriptors, 3)
}

func testDeleteMissing(t *testing.T, newStore Factory) {
	s := connected(t, newStore)
	err := s.Delete(t.Context(), model.NewID())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testClosed(t *testing.T, newStore Factory) {
	s := newStore(t)
	require.NoError(t, s.Connect(t.Context()))
	require.NoError(t, s.Close())

	ctx := context.Background()
	_, err := s.Scan(ctx, nil)
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = s.Insert(ctx, model.Record{})
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.ErrorIs(t, s.Delete(ctx, model.NewID()), store.ErrClosed)
}
