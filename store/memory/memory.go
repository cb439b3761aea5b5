// Package memory is an in-process store.Store.
//
// Records are kept in identity order; the scan cursor is the last identity
// returned.
package memory

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
)

// Store is an in-memory store.Store. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	records   map[model.ID]model.Record
	order     []model.ID
	connected bool
	closed    bool
	newID     func() model.ID

	// connectErrs are returned by successive Connect calls before succeeding.
	connectErrs []error
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[model.ID]model.Record), newID: model.NewID}
}

// FailConnect makes the next len(errs) Connect calls fail with errs in order.
func (s *Store) FailConnect(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErrs = append(s.connectErrs, errs...)
}

// Connect implements store.Store.
func (s *Store) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if len(s.connectErrs) > 0 {
		err := s.connectErrs[0]
		s.connectErrs = s.connectErrs[1:]
		return err
	}
	s.connected = true
	return nil
}

func (s *Store) check() error {
	if s.closed {
		return store.ErrClosed
	}
	if !s.connected {
		return store.ErrNotConnected
	}
	return nil
}

// Scan implements store.Store.
func (s *Store) Scan(ctx context.Context, cursor model.Cursor, opts ...store.ScanOption) (model.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return model.Chunk{}, err
	}
	o := store.ApplyScanOptions(opts...)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(); err != nil {
		return model.Chunk{}, err
	}

	start := 0
	if len(cursor) > 0 {
		start, _ = slices.BinarySearchFunc(s.order, cursor, func(id model.ID, c model.Cursor) int {
			return bytes.Compare(id[:], c)
		})
		if start < len(s.order) && bytes.Equal(s.order[start][:], cursor) {
			start++
		}
	}

	end := min(start+o.PageSize, len(s.order))
	chunk := model.Chunk{Records: make([]model.Record, 0, end-start)}
	for _, id := range s.order[start:end] {
		chunk.Records = append(chunk.Records, clone(s.records[id], !o.WithoutImages))
	}
	chunk.Last = end == len(s.order)
	if !chunk.Last {
		last := s.order[end-1]
		chunk.Next = model.Cursor(bytes.Clone(last[:]))
	}
	return chunk, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id model.ID) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(); err != nil {
		return model.Record{}, err
	}
	rec, ok := s.records[id]
	if !ok {
		return model.Record{}, store.ErrNotFound
	}
	return clone(rec, true), nil
}

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, rec model.Record) (model.ID, error) {
	if err := ctx.Err(); err != nil {
		return model.NilID, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return model.NilID, err
	}

	rec, err := store.AssignID(rec, s.newID)
	if err != nil {
		return model.NilID, err
	}
	if _, exists := s.records[rec.ID]; exists {
		return model.NilID, store.ErrExists
	}
	i, _ := slices.BinarySearchFunc(s.order, rec.ID, compareIDs)
	s.order = slices.Insert(s.order, i, rec.ID)
	s.records[rec.ID] = clone(rec, true)
	return rec.ID, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id model.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return err
	}
	if _, ok := s.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.records, id)
	i, _ := slices.BinarySearchFunc(s.order, id, compareIDs)
	s.order = slices.Delete(s.order, i, i+1)
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.connected = false
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func compareIDs(a, b model.ID) int {
	return bytes.Compare(a[:], b[:])
}

func clone(rec model.Record, withImage bool) model.Record {
	out := rec
	out.Descriptors = slices.Clone(rec.Descriptors)
	if withImage {
		out.Image = bytes.Clone(rec.Image)
	} else {
		out.Image = nil
	}
	return out
}
