// Package store defines the persistent exhibit store the engine loads from
// and writes through.
//
// Every call is a single attempt: implementations never retry. Connection
// retries are the caller's concern.
package store

import (
	"context"
	"errors"

	"github.com/hupe1980/exhibitid/model"
)

var (
	// ErrNotFound is returned when an exhibit does not exist.
	ErrNotFound = errors.New("store: exhibit not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")

	// ErrNotConnected is returned by operations before Connect succeeded.
	ErrNotConnected = errors.New("store: not connected")

	// ErrExists is returned by Insert when the assigned identity is taken.
	ErrExists = errors.New("store: exhibit already exists")

	// ErrIdentityGiven is returned by Insert when the caller set rec.ID.
	// Identities are assigned by the store.
	ErrIdentityGiven = errors.New("store: identity is store-assigned")
)

// DefaultPageSize is the scan page size when none is given.
const DefaultPageSize = 100

// Store is the persistent exhibit store.
//
// Scan walks every live record exactly once across the paged walk, strictly
// forward, provided the store is not mutated during the walk. Order is
// implementation defined.
type Store interface {
	// Connect establishes the connection. It is a single attempt.
	Connect(ctx context.Context) error

	// Scan returns the page after cursor. An empty cursor starts the walk.
	Scan(ctx context.Context, cursor model.Cursor, opts ...ScanOption) (model.Chunk, error)

	// Get returns one record.
	Get(ctx context.Context, id model.ID) (model.Record, error)

	// Insert persists rec as a new record under a fresh identity and
	// returns it. rec.ID must be zero. Records are never overwritten: an
	// identity that is already taken yields ErrExists.
	Insert(ctx context.Context, rec model.Record) (model.ID, error)

	// Delete removes the record. Missing records yield ErrNotFound.
	Delete(ctx context.Context, id model.ID) error

	// Close releases the connection.
	Close() error
}

// ScanOptions configures a scan.
type ScanOptions struct {
	PageSize      int
	WithoutImages bool
}

// ScanOption configures a scan.
type ScanOption func(*ScanOptions)

// WithPageSize sets the maximum number of records per page.
func WithPageSize(n int) ScanOption {
	return func(o *ScanOptions) {
		o.PageSize = n
	}
}

// WithoutImages omits image payloads from scanned records.
func WithoutImages() ScanOption {
	return func(o *ScanOptions) {
		o.WithoutImages = true
	}
}

// ApplyScanOptions resolves opts over the defaults.
func ApplyScanOptions(opts ...ScanOption) ScanOptions {
	o := ScanOptions{PageSize: DefaultPageSize}
	for _, fn := range opts {
		fn(&o)
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	return o
}

// SkipOrFail decides the fate of a record that failed to decode during a
// scan. Malformed descriptors are returned as the scan error; anything else
// is recorded in chunk.Skipped and the scan continues.
func SkipOrFail(chunk *model.Chunk, err error) error {
	if errors.Is(err, model.ErrMalformedDescriptors) {
		return err
	}
	chunk.Skipped = append(chunk.Skipped, err)
	return nil
}

// AssignID returns rec under a fresh identity from newID, or model.NewID
// when newID is nil. A caller-chosen rec.ID yields ErrIdentityGiven.
func AssignID(rec model.Record, newID func() model.ID) (model.Record, error) {
	if rec.ID != model.NilID {
		return model.Record{}, ErrIdentityGiven
	}
	if newID == nil {
		newID = model.NewID
	}
	rec.ID = newID()
	return rec, nil
}

// Walk pages through the whole store and calls fn for every record.
// An error from fn stops the walk and is returned unchanged.
func Walk(ctx context.Context, s Store, fn func(model.Record) error, opts ...ScanOption) error {
	var cursor model.Cursor
	for {
		chunk, err := s.Scan(ctx, cursor, opts...)
		if err != nil {
			return err
		}
		for _, rec := range chunk.Records {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if chunk.Last {
			return nil
		}
		cursor = chunk.Next
	}
}
