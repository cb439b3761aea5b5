// Package badgerstore is an embedded store.Store on BadgerDB.
//
// Records live under the "exhibit/" key prefix, keyed by canonical id and
// encoded with a codec.Codec. The scan cursor is the last key returned.
package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/exhibitid/codec"
	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
)

var prefix = []byte("exhibit/")

// Config configures the store.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string
	// InMemory keeps all data in memory.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// Codec encodes records. Default: codec.Default.
	Codec codec.Codec
	// Compression applied to descriptor blobs. Default: lz4.
	Compression codec.Compression
	// Logger receives badger's internal logging. Nil silences it.
	Logger badger.Logger
}

// Store implements store.Store on BadgerDB.
type Store struct {
	mu     sync.RWMutex
	cfg    Config
	db     *badger.DB
	closed bool
	newID  func() model.ID
}

// New creates an unopened store. Connect opens the database.
func New(cfg Config) *Store {
	if cfg.Codec == nil {
		cfg.Codec = codec.Default
	}
	if cfg.Compression == codec.CompressionNone {
		cfg.Compression = codec.CompressionLZ4
	}
	return &Store{cfg: cfg, newID: model.NewID}
}

// Connect opens the database.
func (s *Store) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if s.db != nil {
		return nil
	}

	var opts badger.Options
	if s.cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(s.cfg.Dir)
	}
	opts = opts.WithSyncWrites(s.cfg.SyncWrites).WithLogger(s.cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger database: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) conn() (*badger.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	if s.db == nil {
		return nil, store.ErrNotConnected
	}
	return s.db, nil
}

func recordKey(id model.ID) []byte {
	return append(bytes.Clone(prefix), id.String()...)
}

// Scan implements store.Store.
func (s *Store) Scan(ctx context.Context, cursor model.Cursor, opts ...store.ScanOption) (model.Chunk, error) {
	db, err := s.conn()
	if err != nil {
		return model.Chunk{}, err
	}
	o := store.ApplyScanOptions(opts...)

	chunk := model.Chunk{Records: make([]model.Record, 0, o.PageSize)}
	err = db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix
		iopts.PrefetchSize = o.PageSize
		it := txn.NewIterator(iopts)
		defer it.Close()

		if len(cursor) > 0 {
			it.Seek(cursor)
			if it.Valid() && bytes.Equal(it.Item().Key(), cursor) {
				it.Next()
			}
		} else {
			it.Rewind()
		}

		var (
			lastKey []byte
			n       int
		)
		for ; it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if n == o.PageSize {
				chunk.Next = model.Cursor(lastKey)
				return nil
			}

			item := it.Item()
			lastKey = item.KeyCopy(nil)
			n++

			var rec model.Record
			if err := item.Value(func(val []byte) error {
				var err error
				rec, err = codec.DecodeRecord(s.cfg.Codec, val, !o.WithoutImages)
				return err
			}); err != nil {
				if err := store.SkipOrFail(&chunk, fmt.Errorf("key %s: %w", lastKey, err)); err != nil {
					return err
				}
				continue
			}
			chunk.Records = append(chunk.Records, rec)
		}
		chunk.Last = true
		return nil
	})
	if err != nil {
		return model.Chunk{}, err
	}
	return chunk, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id model.ID) (model.Record, error) {
	db, err := s.conn()
	if err != nil {
		return model.Record{}, err
	}

	var rec model.Record
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = codec.DecodeRecord(s.cfg.Codec, val, true)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Record{}, store.ErrNotFound
	}
	return rec, err
}

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, rec model.Record) (model.ID, error) {
	db, err := s.conn()
	if err != nil {
		return model.NilID, err
	}
	rec, err = store.AssignID(rec, s.newID)
	if err != nil {
		return model.NilID, err
	}

	val, err := codec.EncodeRecord(s.cfg.Codec, rec, s.cfg.Compression)
	if err != nil {
		return model.NilID, err
	}
	err = db.Update(func(txn *badger.Txn) error {
		k := recordKey(rec.ID)
		if _, err := txn.Get(k); err == nil {
			return store.ErrExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(k, val)
	})
	if errors.Is(err, store.ErrExists) {
		return model.NilID, err
	}
	if err != nil {
		return model.NilID, fmt.Errorf("badgerstore: insert %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id model.ID) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	err = db.Update(func(txn *badger.Txn) error {
		k := recordKey(id)
		if _, err := txn.Get(k); err != nil {
			return err
		}
		return txn.Delete(k)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("badgerstore: delete %s: %w", id, err)
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
