package sqlstore

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/hupe1980/exhibitid/codec"
	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
	"github.com/hupe1980/exhibitid/store/storetest"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T, comp codec.Compression) *Store {
	t.Helper()
	return New(SQLite{}, Config{
		DSN:         filepath.Join(t.TempDir(), "exhibits.db"),
		Compression: comp,
	})
}

func TestSQLite_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newSQLite(t, codec.CompressionNone) })
}

func TestSQLite_ConformanceZSTD(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newSQLite(t, codec.CompressionZSTD) })
}

func TestSQLite_MalformedBlob(t *testing.T) {
	s := newSQLite(t, codec.CompressionNone)
	require.NoError(t, s.Connect(t.Context()))
	t.Cleanup(func() { _ = s.Close() })

	raw, err := codec.Compress(make([]byte, 31), codec.CompressionNone)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(t.Context(),
		"INSERT INTO exhibits (id, title, description, image, image_key, descriptors) VALUES (?, '', '', NULL, '', ?)",
		model.NewID().String(), raw)
	require.NoError(t, err)

	_, err = s.Scan(t.Context(), nil)
	assert.ErrorIs(t, err, model.ErrMalformedDescriptors)
}

func TestSQLite_SkipsUnreadableRecords(t *testing.T) {
	s := newSQLite(t, codec.CompressionNone)
	require.NoError(t, s.Connect(t.Context()))
	t.Cleanup(func() { _ = s.Close() })

	blob, err := codec.CompressDescriptors(make([]model.Descriptor, 1), codec.CompressionNone)
	require.NoError(t, err)
	// Sorts after every canonical uuid, so it is the last row of the page.
	_, err = s.DB().ExecContext(t.Context(),
		"INSERT INTO exhibits (id, title, description, image, image_key, descriptors) VALUES ('zz-not-an-id', '', '', NULL, '', ?)",
		blob)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Insert(t.Context(), model.Record{Descriptors: make([]model.Descriptor, 1)})
		require.NoError(t, err)
	}

	var (
		records, skipped int
		cursor           model.Cursor
	)
	for {
		chunk, err := s.Scan(t.Context(), cursor, store.WithPageSize(2))
		require.NoError(t, err)
		records += len(chunk.Records)
		skipped += len(chunk.Skipped)
		if chunk.Last {
			break
		}
		cursor = chunk.Next
	}
	assert.Equal(t, 3, records)
	assert.Equal(t, 1, skipped)
}

func TestSQLite_ConnectIsIdempotentAndPersists(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "exhibits.db")

	s := New(SQLite{}, Config{DSN: dsn})
	require.NoError(t, s.Connect(t.Context()))
	require.NoError(t, s.Connect(t.Context()))
	id, err := s.Insert(t.Context(), model.Record{Title: "Vase", Descriptors: make([]model.Descriptor, 2)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := New(SQLite{}, Config{DSN: dsn})
	require.NoError(t, reopened.Connect(t.Context()))
	t.Cleanup(func() { _ = reopened.Close() })

	rec, err := reopened.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "Vase", rec.Title)
	assert.Len(t, rec.Descriptors, 2)
}

func TestSQLite_InsertIsCreateOnly(t *testing.T) {
	s := newSQLite(t, codec.CompressionNone)
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
}

func TestDialects(t *testing.T) {
	for _, name := range []string{"sqlite", "postgres", "mysql"} {
		d, err := DialectByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
		assert.Contains(t, d.CreateTable("exhibits"), "CREATE TABLE IF NOT EXISTS")
	}
	_, err := DialectByName("oracle")
	assert.Error(t, err)

	pg := New(Postgres{}, Config{})
	assert.Equal(t, `SELECT id, title, description, image, image_key, descriptors FROM "exhibits" WHERE id > $1 ORDER BY id LIMIT $2`, pg.qScanFrom)
	assert.True(t, strings.HasSuffix(pg.qInsert, "VALUES ($1, $2, $3, $4, $5, $6)"))

	my := New(MySQL{}, Config{Table: "museum"})
	assert.Equal(t, "DELETE FROM `museum` WHERE id = ?", my.qDelete)

	assert.True(t, Postgres{}.IsDuplicateKey(fmt.Errorf("wrapped: %w", &pq.Error{Code: "23505"})))
	assert.False(t, Postgres{}.IsDuplicateKey(&pq.Error{Code: "23503"}))
	assert.True(t, MySQL{}.IsDuplicateKey(&mysql.MySQLError{Number: 1062}))
	assert.False(t, MySQL{}.IsDuplicateKey(errors.New("boom")))
	assert.False(t, SQLite{}.IsDuplicateKey(errors.New("boom")))
}
