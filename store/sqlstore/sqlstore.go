// Package sqlstore is a store.Store on database/sql.
//
// SQLite, PostgreSQL and MySQL are supported through dialects. Scans use
// keyset pagination on the primary key; the cursor is the last id returned.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/exhibitid/codec"
	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
)

// DefaultTable is the table name used when none is configured.
const DefaultTable = "exhibits"

// Config configures the SQL store.
type Config struct {
	// DSN is the driver-specific connection string.
	DSN string
	// Table defaults to DefaultTable.
	Table string
	// Compression applied to descriptor blobs. Default: none.
	Compression codec.Compression

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// ConnectTimeout bounds the ping in Connect. Default: 10s.
	ConnectTimeout time.Duration
}

// Store implements store.Store on a SQL database.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	dialect Dialect
	db      *sql.DB
	closed  bool
	newID   func() model.ID

	// Prepared query texts.
	qScan, qScanFrom, qScanNoImg, qScanFromNoImg string
	qGet, qInsert, qDelete                       string
}

// New creates an unconnected store.
func New(dialect Dialect, cfg Config) *Store {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	s := &Store{cfg: cfg, dialect: dialect, newID: model.NewID}
	s.buildQueries()
	return s
}

// Open creates an unconnected store for the named dialect.
func Open(dialectName string, cfg Config) (*Store, error) {
	d, err := DialectByName(dialectName)
	if err != nil {
		return nil, err
	}
	return New(d, cfg), nil
}

func (s *Store) buildQueries() {
	d := s.dialect
	t := d.QuoteIdentifier(s.cfg.Table)
	all := "id, title, description, image, image_key, descriptors"
	noImg := "id, title, description, NULL, image_key, descriptors"

	s.qScan = fmt.Sprintf("SELECT %s FROM %s ORDER BY id LIMIT %s", all, t, d.Placeholder(1))
	s.qScanFrom = fmt.Sprintf("SELECT %s FROM %s WHERE id > %s ORDER BY id LIMIT %s", all, t, d.Placeholder(1), d.Placeholder(2))
	s.qScanNoImg = fmt.Sprintf("SELECT %s FROM %s ORDER BY id LIMIT %s", noImg, t, d.Placeholder(1))
	s.qScanFromNoImg = fmt.Sprintf("SELECT %s FROM %s WHERE id > %s ORDER BY id LIMIT %s", noImg, t, d.Placeholder(1), d.Placeholder(2))
	s.qGet = fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", all, t, d.Placeholder(1))

	ph := make([]string, 6)
	for i := range ph {
		ph[i] = d.Placeholder(i + 1)
	}
	s.qInsert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t, all, strings.Join(ph, ", "))
	s.qDelete = fmt.Sprintf("DELETE FROM %s WHERE id = %s", t, d.Placeholder(1))
}

// Connect opens the database, verifies connectivity and bootstraps the schema.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open(s.dialect.DriverName(), s.cfg.DSN)
	if err != nil {
		return fmt.Errorf("sqlstore: open %s: %w", s.dialect.Name(), err)
	}
	if s.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	}
	if s.cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	}
	if s.cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlstore: ping %s: %w", s.dialect.Name(), err)
	}
	if _, err := db.ExecContext(ctx, s.dialect.CreateTable(s.cfg.Table)); err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlstore: create table %s: %w", s.cfg.Table, err)
	}

	s.db = db
	return nil
}

func (s *Store) conn() (*sql.DB, error) {
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

type scanner interface {
	Scan(dest ...any) error
}

type row struct {
	id, title, desc, imageKey string
	image, blob               []byte
}

func scanRow(sc scanner) (row, error) {
	var r row
	err := sc.Scan(&r.id, &r.title, &r.desc, &r.image, &r.imageKey, &r.blob)
	return r, err
}

func scanRecord(sc scanner) (model.Record, error) {
	r, err := scanRow(sc)
	if err != nil {
		return model.Record{}, err
	}
	return r.record()
}

func (r row) record() (model.Record, error) {
	id, err := model.ParseID(r.id)
	if err != nil {
		return model.Record{}, err
	}
	descs, err := codec.DecompressDescriptors(r.blob)
	if err != nil {
		return model.Record{}, fmt.Errorf("record %s: %w", r.id, err)
	}
	return model.Record{
		ID:          id,
		Title:       r.title,
		Description: r.desc,
		Image:       r.image,
		ImageKey:    r.imageKey,
		Descriptors: descs,
	}, nil
}

// Scan implements store.Store.
func (s *Store) Scan(ctx context.Context, cursor model.Cursor, opts ...store.ScanOption) (model.Chunk, error) {
	db, err := s.conn()
	if err != nil {
		return model.Chunk{}, err
	}
	o := store.ApplyScanOptions(opts...)

	var rows *sql.Rows
	switch {
	case len(cursor) == 0 && !o.WithoutImages:
		rows, err = db.QueryContext(ctx, s.qScan, o.PageSize)
	case len(cursor) == 0:
		rows, err = db.QueryContext(ctx, s.qScanNoImg, o.PageSize)
	case !o.WithoutImages:
		rows, err = db.QueryContext(ctx, s.qScanFrom, string(cursor), o.PageSize)
	default:
		rows, err = db.QueryContext(ctx, s.qScanFromNoImg, string(cursor), o.PageSize)
	}
	if err != nil {
		return model.Chunk{}, fmt.Errorf("sqlstore: scan: %w", err)
	}
	defer rows.Close()

	chunk := model.Chunk{Records: make([]model.Record, 0, o.PageSize)}
	var (
		n      int
		lastID string
	)
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return model.Chunk{}, fmt.Errorf("sqlstore: scan: %w", err)
		}
		n++
		lastID = r.id

		rec, err := r.record()
		if err != nil {
			if err := store.SkipOrFail(&chunk, err); err != nil {
				return model.Chunk{}, err
			}
			continue
		}
		chunk.Records = append(chunk.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return model.Chunk{}, fmt.Errorf("sqlstore: scan: %w", err)
	}

	// A full page may be followed by more rows; the next scan settles it.
	if n < o.PageSize {
		chunk.Last = true
	} else {
		chunk.Next = model.Cursor(lastID)
	}
	return chunk, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id model.ID) (model.Record, error) {
	db, err := s.conn()
	if err != nil {
		return model.Record{}, err
	}
	rec, err := scanRecord(db.QueryRowContext(ctx, s.qGet, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
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

	blob, err := codec.CompressDescriptors(rec.Descriptors, s.cfg.Compression)
	if err != nil {
		return model.NilID, err
	}
	if _, err := db.ExecContext(ctx, s.qInsert,
		rec.ID.String(), rec.Title, rec.Description, rec.Image, rec.ImageKey, blob,
	); err != nil {
		if s.dialect.IsDuplicateKey(err) {
			return model.NilID, fmt.Errorf("sqlstore: insert %s: %w", rec.ID, store.ErrExists)
		}
		return model.NilID, fmt.Errorf("sqlstore: insert %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id model.ID) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, s.qDelete, id.String())
	if err != nil {
		return fmt.Errorf("sqlstore: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: delete %s: %w", id, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DB returns the underlying handle, or nil before Connect.
func (s *Store) DB() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
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
