package exhibitid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/exhibitid/internal/connection"
	"github.com/hupe1980/exhibitid/internal/featureindex"
	"github.com/hupe1980/exhibitid/internal/generation"
	"github.com/hupe1980/exhibitid/internal/pool"
	"github.com/hupe1980/exhibitid/internal/resource"
	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
)

// Engine identifies exhibits against an index mirrored from a store.
//
// Engine is safe for concurrent use. Identification runs fully in parallel;
// mutations are serialized among themselves but never block identification.
type Engine struct {
	opts      options
	store     store.Store
	conn      *connection.Manager
	index     *featureindex.Index
	gens      *generation.Manager
	resources *resource.Controller

	// nil unless WithExtractors was given.
	extractors *pool.Pool[Extractor]

	writeMu sync.Mutex
	closed  atomic.Bool
}

// Open connects to st, retrying per WithMaxRetries and WithRetryDelay,
// loads every stored exhibit into the index, and publishes the first search
// generation.
//
// Open fails with ErrConnectFailed when the store stays unreachable, and
// with a *LoadError when the load aborts, for example on a malformed
// descriptor blob. Records that merely fail to decode are logged and left
// out of the index.
func Open(ctx context.Context, st store.Store, optFns ...Option) (*Engine, error) {
	if st == nil {
		return nil, errors.New("exhibitid: nil store")
	}

	o := applyOptions(optFns)

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:  o.memoryLimit,
		LoadRecordsPerSec: o.loadRate,
	})

	e := &Engine{
		opts:      o,
		store:     st,
		index:     featureindex.New(),
		resources: rc,
	}

	e.conn = connection.NewManager(st.Connect, connection.Options{
		MaxRetries: o.maxRetries,
		RetryDelay: o.retryDelay,
		Logger:     o.logger.Logger,
		Sleep:      o.sleep,
	})

	e.gens = generation.NewManager(generation.Options{
		PoolSize:       o.poolSize,
		AcquireTimeout: o.acquireTimeout,
		Resources:      rc,
		Logger:         o.logger.Logger,
		OnBuild:        o.metricsCollector.RecordGenerationBuild,
	})

	if o.newExtractor != nil {
		exts := make([]Extractor, o.extractors)
		for i := range exts {
			exts[i] = o.newExtractor()
		}
		var popts []pool.Option
		if o.acquireTimeout > 0 {
			popts = append(popts, pool.WithAcquireTimeout(o.acquireTimeout))
		}
		e.extractors = pool.New(exts, popts...)
	}

	if err := e.start(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return e, nil
}

// start connects, loads the index and publishes the first generation.
func (e *Engine) start(ctx context.Context) error {
	if err := e.conn.Connect(ctx); err != nil {
		return err
	}
	if err := e.load(ctx); err != nil {
		return err
	}
	if err := e.gens.Rebuild(ctx, e.index.Snapshot()); err != nil {
		return fmt.Errorf("build initial generation: %w", err)
	}
	return nil
}

// load pages through the store and fills the index.
func (e *Engine) load(ctx context.Context) error {
	start := time.Now()
	log := e.opts.logger

	var (
		cursor  model.Cursor
		records int
		skipped int
	)

	fail := func(err error) error {
		err = &LoadError{Loaded: records, cause: err}
		e.opts.metricsCollector.RecordLoad(records, skipped, time.Since(start), err)
		log.LogLoad(ctx, records, e.index.Len(), skipped, err)
		return err
	}

	for {
		chunk, err := e.store.Scan(ctx, cursor,
			store.WithPageSize(e.opts.pageSize),
			store.WithoutImages(),
		)
		if err != nil {
			return fail(err)
		}

		for _, serr := range chunk.Skipped {
			skipped++
			log.LogSkipped(ctx, "unreadable record", serr)
		}

		for _, rec := range chunk.Records {
			if len(rec.Descriptors) == 0 {
				skipped++
				log.WithExhibit(rec.ID).LogSkipped(ctx, "no descriptors", nil)
				continue
			}
			e.index.Append(rec.Descriptors, rec.ID)
			records++
		}

		if err := e.resources.WaitLoad(ctx, len(chunk.Records)+len(chunk.Skipped)); err != nil {
			return fail(err)
		}

		if chunk.Last {
			break
		}
		cursor = chunk.Next
	}

	e.opts.metricsCollector.RecordLoad(records, skipped, time.Since(start), nil)
	log.LogLoad(ctx, records, e.index.Len(), skipped, nil)
	return nil
}

// rebuild publishes a generation for the current index. Failures are
// logged by the manager and leave the previous generation current.
// Callers hold writeMu.
func (e *Engine) rebuild(ctx context.Context) {
	_ = e.gens.Rebuild(context.WithoutCancel(ctx), e.index.Snapshot())
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	// Generation is the version of the current search generation.
	Generation uint64
	// Rows is the number of searchable descriptors in it.
	Rows int
	// Exhibits is the number of distinct exhibits in it.
	Exhibits int

	PoolSize int
	InUse    int
	Waiting  int

	Builds          int64
	FailedBuilds    int64
	LiveGenerations int64

	MemoryUsage int64
	MemoryLimit int64

	// IndexRows is the row count of the mutable index, which may be ahead
	// of Rows after a failed build.
	IndexRows int

	Connection      string
	ConnectAttempts int
}

// Stats returns engine statistics.
func (e *Engine) Stats() Stats {
	gs := e.gens.Stats()
	s := Stats{
		Generation:      gs.Version,
		Rows:            gs.Rows,
		PoolSize:        gs.PoolSize,
		InUse:           gs.InUse,
		Waiting:         gs.Waiting,
		Builds:          gs.Builds,
		FailedBuilds:    gs.FailedBuilds,
		LiveGenerations: gs.LiveGeneration,
		MemoryUsage:     e.resources.MemoryUsage(),
		MemoryLimit:     e.resources.MemoryLimit(),
		IndexRows:       e.index.Len(),
		Connection:      e.conn.State().String(),
		ConnectAttempts: e.conn.Attempts(),
	}
	if g := e.gens.Current(); g != nil {
		s.Exhibits = len(g.Snapshot().Identities())
	}
	return s
}

// Close unpublishes the search structures and closes the store.
// In-flight identifications finish on the generation they pinned.
// Close waits for in-flight mutations. It is safe to call more than once.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var errs []error
	if err := e.gens.Close(); err != nil {
		errs = append(errs, err)
	}
	e.conn.Disconnect()
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
