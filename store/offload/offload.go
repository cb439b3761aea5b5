// Package offload keeps exhibit images in a blobstore.BlobStore instead of
// the record store.
//
// Inserted records have their image written to the blob store under a
// fresh key below KeyPrefix and the record keeps only the key. Image keys
// are never shared or reused, so a failed insert cannot touch another
// exhibit's image. Scans and gets restore images by fetching the referenced
// blobs concurrently. A record whose image cannot be fetched is skipped by
// a scan and reported in Chunk.Skipped. An optional LRU keeps recently
// fetched images in memory.
package offload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/exhibitid/blobstore"
	"github.com/hupe1980/exhibitid/internal/cache"
	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
	"golang.org/x/sync/errgroup"
)

// DefaultKeyPrefix is the blob name prefix for images.
const DefaultKeyPrefix = "images/"

// DefaultFetchConcurrency bounds parallel image fetches per scan page.
const DefaultFetchConcurrency = 8

// Options configures the decorator.
type Options struct {
	KeyPrefix        string
	FetchConcurrency int
	// CacheBytes bounds the in-memory image cache. Zero disables it.
	CacheBytes int64
	Logger     *slog.Logger
}

// Store wraps a store.Store and offloads images.
type Store struct {
	inner  store.Store
	blobs  blobstore.BlobStore
	opts   Options
	logger *slog.Logger
	cache  *cache.LRU // nil when disabled
}

// New wraps inner.
func New(inner store.Store, blobs blobstore.BlobStore, opts Options) *Store {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = DefaultFetchConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Store{inner: inner, blobs: blobs, opts: opts, logger: logger}
	if opts.CacheBytes > 0 {
		s.cache = cache.NewLRU(opts.CacheBytes)
	}
	return s
}

// fetchImage returns the blob under key, consulting the cache first.
func (s *Store) fetchImage(ctx context.Context, key string) ([]byte, error) {
	if s.cache != nil {
		if img, ok := s.cache.Get(key); ok {
			return bytes.Clone(img), nil
		}
	}
	img, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("offload: fetch image %s: %w", key, err)
	}
	if s.cache != nil {
		s.cache.Set(key, bytes.Clone(img))
	}
	return img, nil
}

// CacheStats returns image cache hits and misses.
func (s *Store) CacheStats() (hits, misses int64) {
	if s.cache == nil {
		return 0, 0
	}
	return s.cache.Stats()
}

func (s *Store) newImageKey() string {
	return s.opts.KeyPrefix + model.NewID().String()
}

// Connect implements store.Store.
func (s *Store) Connect(ctx context.Context) error {
	return s.inner.Connect(ctx)
}

// Scan implements store.Store.
func (s *Store) Scan(ctx context.Context, cursor model.Cursor, opts ...store.ScanOption) (model.Chunk, error) {
	chunk, err := s.inner.Scan(ctx, cursor, opts...)
	if err != nil {
		return model.Chunk{}, err
	}
	if store.ApplyScanOptions(opts...).WithoutImages {
		return chunk, nil
	}

	// Fetch failures are per record; only cancellation fails the page.
	fetchErrs := make([]error, len(chunk.Records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FetchConcurrency)
	for i := range chunk.Records {
		rec := &chunk.Records[i]
		if rec.ImageKey == "" {
			continue
		}
		g.Go(func() error {
			img, err := s.fetchImage(gctx, rec.ImageKey)
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				fetchErrs[i] = fmt.Errorf("record %s: %w", rec.ID, err)
				return nil
			}
			rec.Image = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Chunk{}, err
	}

	kept := chunk.Records[:0]
	for i, rec := range chunk.Records {
		if err := fetchErrs[i]; err != nil {
			if err := store.SkipOrFail(&chunk, err); err != nil {
				return model.Chunk{}, err
			}
			s.logger.WarnContext(ctx, "skipped exhibit without image", slog.String("id", rec.ID.String()), slog.String("error", err.Error()))
			continue
		}
		kept = append(kept, rec)
	}
	chunk.Records = kept
	return chunk, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id model.ID) (model.Record, error) {
	rec, err := s.inner.Get(ctx, id)
	if err != nil {
		return model.Record{}, err
	}
	if rec.ImageKey != "" {
		img, err := s.fetchImage(ctx, rec.ImageKey)
		if err != nil {
			return model.Record{}, err
		}
		rec.Image = img
	}
	return rec, nil
}

// Insert writes the image blob first, then the record. A failed record
// insert removes the blob again.
func (s *Store) Insert(ctx context.Context, rec model.Record) (model.ID, error) {
	if rec.ID != model.NilID {
		return model.NilID, store.ErrIdentityGiven
	}
	if len(rec.Image) == 0 {
		return s.inner.Insert(ctx, rec)
	}

	key := s.newImageKey()
	if err := s.blobs.Put(ctx, key, rec.Image); err != nil {
		return model.NilID, fmt.Errorf("offload: store image %s: %w", key, err)
	}

	rec.ImageKey = key
	rec.Image = nil
	id, err := s.inner.Insert(ctx, rec)
	if err != nil {
		s.removeImage(context.WithoutCancel(ctx), key)
		return model.NilID, err
	}
	return id, nil
}

// Delete removes the record, then its image. A failed image delete is
// logged and leaves an orphaned blob.
func (s *Store) Delete(ctx context.Context, id model.ID) error {
	rec, err := s.inner.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err != nil {
		// An unreadable record is still deleted; its image key is unknown.
		s.logger.WarnContext(ctx, "deleting unreadable exhibit", slog.String("id", id.String()), slog.String("error", err.Error()))
	}
	if err := s.inner.Delete(ctx, id); err != nil {
		return err
	}
	if rec.ImageKey != "" {
		s.removeImage(ctx, rec.ImageKey)
	}
	return nil
}

func (s *Store) removeImage(ctx context.Context, key string) {
	s.forget(key)
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.logger.WarnContext(ctx, "orphaned image blob", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Store) forget(key string) {
	if s.cache != nil {
		s.cache.Remove(key)
	}
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.inner.Close()
}
