package badgerstore

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/exhibitid/codec"
	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
	"github.com/hupe1980/exhibitid/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ConformanceInMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New(Config{InMemory: true})
	})
}

func TestStore_ConformanceOnDiskJSON(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New(Config{Dir: t.TempDir(), Codec: codec.JSON{}, Compression: codec.CompressionZSTD})
	})
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	s := New(Config{Dir: dir, SyncWrites: true})
	require.NoError(t, s.Connect(t.Context()))
	id, err := s.Insert(t.Context(), model.Record{Title: "Helmet", Descriptors: make([]model.Descriptor, 3)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := New(Config{Dir: dir})
	require.NoError(t, reopened.Connect(t.Context()))
	t.Cleanup(func() { _ = reopened.Close() })

	rec, err := reopened.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "Helmet", rec.Title)
	assert.Len(t, rec.Descriptors, 3)
}

func TestStore_MalformedValue(t *testing.T) {
	s := New(Config{InMemory: true})
	require.NoError(t, s.Connect(t.Context()))
	t.Cleanup(func() { _ = s.Close() })

	raw, err := codec.Compress(make([]byte, 50), codec.CompressionNone)
	require.NoError(t, err)
	val, err := codec.Default.Marshal(codec.StoredRecord{ID: model.NewID().String(), Descriptors: raw})
	require.NoError(t, err)

	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append([]byte("exhibit/"), "zzz"...), val)
	}))

	_, err = s.Scan(t.Context(), nil)
	assert.ErrorIs(t, err, model.ErrMalformedDescriptors)
}

func TestStore_InsertIsCreateOnly(t *testing.T) {
	s := New(Config{InMemory: true})
	require.NoError(t, s.Connect(t.Context()))
	t.Cleanup(func() { _ = s.Close() })

	id := model.NewID()
	s.newID = func() model.ID { return id }

	_, err := s.Insert(t.Context(), model.Record{Title: "first", Descriptors: make([]model.Descriptor, 1)})
	require.NoError(t, err)

	_, err = s.Insert(t.Context(), model.Record{Title: "second", Descriptors: make([]model.Descriptor, 2)})
	assert.ErrorIs(t, err, store.ErrExists)

	got, err := s.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
	assert.Len(t, got.Descriptors, 1)
}
