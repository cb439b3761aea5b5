package offload

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/exhibitid/blobstore"
	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
	"github.com/hupe1980/exhibitid/store/memory"
	"github.com/hupe1980/exhibitid/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New(memory.New(), blobstore.NewMemoryStore(), Options{FetchConcurrency: 2})
	})
}

func TestStore_ConformanceWithCache(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New(memory.New(), blobstore.NewMemoryStore(), Options{CacheBytes: 1 << 20})
	})
}

func TestStore_ImageCache(t *testing.T) {
	ctx := t.Context()
	blobs := blobstore.NewMemoryStore()
	s := New(memory.New(), blobs, Options{CacheBytes: 1 << 10})
	require.NoError(t, s.Connect(ctx))

	id, err := s.Insert(ctx, model.Record{Title: "Vase", Image: []byte("v1")})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got.Image)
	}
	hits, misses := s.CacheStats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)

	// Callers cannot corrupt the cached copy.
	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	got.Image[0] = 'x'
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got.Image)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ImagesLiveInBlobStore(t *testing.T) {
	ctx := t.Context()
	inner := memory.New()
	blobs := blobstore.NewMemoryStore()
	s := New(inner, blobs, Options{})
	require.NoError(t, s.Connect(ctx))

	id, err := s.Insert(ctx, model.Record{Title: "Vase", Image: []byte("jpeg")})
	require.NoError(t, err)

	raw, err := inner.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, raw.Image)
	assert.True(t, strings.HasPrefix(raw.ImageKey, DefaultKeyPrefix), raw.ImageKey)

	img, err := blobs.Get(ctx, raw.ImageKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), img)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), got.Image)

	require.NoError(t, s.Delete(ctx, id))
	assert.Zero(t, blobs.Len())
}

// failingInsert fails every record insert once fail is set.
type failingInsert struct {
	store.Store
	fail bool
}

func (f *failingInsert) Insert(ctx context.Context, rec model.Record) (model.ID, error) {
	if f.fail {
		return model.NilID, errors.New("write failed")
	}
	return f.Store.Insert(ctx, rec)
}

func TestStore_FailedInsertRemovesOnlyItsBlob(t *testing.T) {
	ctx := t.Context()
	inner := &failingInsert{Store: memory.New()}
	blobs := blobstore.NewMemoryStore()
	s := New(inner, blobs, Options{})
	require.NoError(t, s.Connect(ctx))

	id, err := s.Insert(ctx, model.Record{Title: "Vase", Image: []byte("vase")})
	require.NoError(t, err)

	inner.fail = true
	_, err = s.Insert(ctx, model.Record{Title: "Helmet", Image: []byte("helmet")})
	require.Error(t, err)
	assert.Equal(t, 1, blobs.Len())

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("vase"), got.Image)
}

func TestStore_SkipsRecordWithMissingImage(t *testing.T) {
	ctx := t.Context()
	inner := memory.New()
	blobs := blobstore.NewMemoryStore()
	s := New(inner, blobs, Options{FetchConcurrency: 2})
	require.NoError(t, s.Connect(ctx))

	var lost model.ID
	for i := 0; i < 4; i++ {
		id, err := s.Insert(ctx, model.Record{Title: "exhibit", Image: []byte{byte(i)}})
		require.NoError(t, err)
		lost = id
	}
	raw, err := inner.Get(ctx, lost)
	require.NoError(t, err)
	require.NoError(t, blobs.Delete(ctx, raw.ImageKey))

	chunk, err := s.Scan(ctx, nil)
	require.NoError(t, err)
	require.Len(t, chunk.Records, 3)
	require.Len(t, chunk.Skipped, 1)
	assert.ErrorIs(t, chunk.Skipped[0], blobstore.ErrNotFound)
	for _, rec := range chunk.Records {
		assert.NotEqual(t, lost, rec.ID)
		assert.Len(t, rec.Image, 1)
	}
	assert.True(t, chunk.Last)

	chunk, err = s.Scan(ctx, nil, store.WithoutImages())
	require.NoError(t, err)
	assert.Len(t, chunk.Records, 4)
	assert.Empty(t, chunk.Skipped)

	_, err = s.Get(ctx, lost)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	// Deleting the record still works without its image.
	require.NoError(t, s.Delete(ctx, lost))
}

func TestStore_CanceledScan(t *testing.T) {
	s := New(memory.New(), blobstore.NewMemoryStore(), Options{})
	require.NoError(t, s.Connect(t.Context()))
	_, err := s.Insert(t.Context(), model.Record{Image: []byte("jpeg")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = s.Scan(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
