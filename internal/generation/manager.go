package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hupe1980/exhibitid/internal/featureindex"
	"github.com/hupe1980/exhibitid/internal/matcher"
	"github.com/hupe1980/exhibitid/internal/pool"
	"github.com/hupe1980/exhibitid/internal/resource"
)

var (
	// ErrNoGeneration is returned by Acquire before the first publication.
	ErrNoGeneration = errors.New("generation: no generation published")

	// ErrStale is returned by Rebuild when a newer generation is already current.
	ErrStale = errors.New("generation: snapshot older than current generation")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("generation: manager closed")
)

// Options configures a Manager.
type Options struct {
	// PoolSize is the number of matchers per generation. Defaults to 10.
	PoolSize int

	// AcquireTimeout selects the timeout acquire policy for matcher pools.
	// Zero keeps the blocking policy.
	AcquireTimeout time.Duration

	// Train tunes matrix packing.
	Train matcher.TrainOptions

	// Resources gates builds (concurrency, memory). Nil means unlimited.
	Resources *resource.Controller

	// Logger receives build and retirement events. Nil disables logging.
	Logger *slog.Logger

	// OnBuild is called after every build attempt.
	OnBuild func(version uint64, rows int, duration time.Duration, err error)
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	Version        uint64
	Rows           int
	PoolSize       int
	InUse          int
	Waiting        int
	Builds         int64
	FailedBuilds   int64
	LiveGeneration int64
}

// Manager owns the current generation.
type Manager struct {
	opts    Options
	current atomic.Pointer[Generation]
	closed  atomic.Bool

	builds       atomic.Int64
	failedBuilds atomic.Int64
	live         atomic.Int64
}

// NewManager creates a manager with no published generation.
func NewManager(opts Options) *Manager {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	return &Manager{opts: opts}
}

// Rebuild trains a new generation from snap and publishes it. On failure
// the error is logged and returned; the current generation is unchanged.
func (m *Manager) Rebuild(ctx context.Context, snap *featureindex.Snapshot) error {
	start := time.Now()
	err := m.rebuild(ctx, snap)
	elapsed := time.Since(start)

	m.builds.Add(1)
	if err != nil && !errors.Is(err, ErrStale) {
		m.failedBuilds.Add(1)
		m.logError(ctx, "generation build failed", snap, err)
	} else if err == nil {
		m.logInfo(ctx, "generation published", snap, elapsed)
	}
	if m.opts.OnBuild != nil {
		m.opts.OnBuild(snap.Version(), snap.Len(), elapsed, err)
	}
	return err
}

func (m *Manager) rebuild(ctx context.Context, snap *featureindex.Snapshot) error {
	if m.closed.Load() {
		return ErrClosed
	}

	if cur := m.current.Load(); cur != nil && cur.version >= snap.Version() {
		return ErrStale
	}

	rc := m.opts.Resources
	if err := rc.AcquireBuild(ctx); err != nil {
		return fmt.Errorf("acquire build slot: %w", err)
	}
	defer rc.ReleaseBuild()

	trained, err := matcher.Train(ctx, snap, m.opts.Train)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	size := trained.SizeBytes()
	if err := rc.AcquireMemory(size); err != nil {
		return fmt.Errorf("reserve %d bytes: %w", size, err)
	}

	matchers := make([]*matcher.Matcher, m.opts.PoolSize)
	for i := range matchers {
		matchers[i] = trained.NewMatcher()
	}

	var popts []pool.Option
	if m.opts.AcquireTimeout > 0 {
		popts = append(popts, pool.WithAcquireTimeout(m.opts.AcquireTimeout))
	}

	next := newGeneration(snap.Version(), snap, trained, pool.New(matchers, popts...))
	next.onClose.Store(func(g *Generation) {
		rc.ReleaseMemory(g.trained.SizeBytes())
		m.live.Add(-1)
		if m.opts.Logger != nil {
			m.opts.Logger.Debug("generation retired", "version", g.version, "rows", g.Rows())
		}
	})
	m.live.Add(1)

	for {
		cur := m.current.Load()
		if cur != nil && cur.version >= next.version {
			// Lost the race against a newer build.
			next.decRef()
			return ErrStale
		}
		if m.current.CompareAndSwap(cur, next) {
			if cur != nil {
				cur.decRef()
			}
			return nil
		}
	}
}

// Acquire borrows a matcher from the current generation. The lease pins
// that generation until Release, even if a newer one is published meanwhile.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	for {
		if m.closed.Load() {
			return nil, ErrClosed
		}
		g := m.current.Load()
		if g == nil {
			return nil, ErrNoGeneration
		}
		if !g.tryIncRef() {
			// Retired between load and pin; the replacement is already visible.
			continue
		}

		mt, err := g.matchers.Acquire(ctx)
		if err != nil {
			g.decRef()
			return nil, err
		}
		return &Lease{gen: g, matcher: mt}, nil
	}
}

// Current returns the current generation without pinning it, or nil.
func (m *Manager) Current() *Generation {
	return m.current.Load()
}

// Stats returns manager statistics.
func (m *Manager) Stats() Stats {
	s := Stats{
		PoolSize:       m.opts.PoolSize,
		Builds:         m.builds.Load(),
		FailedBuilds:   m.failedBuilds.Load(),
		LiveGeneration: m.live.Load(),
	}
	if g := m.current.Load(); g != nil {
		s.Version = g.version
		s.Rows = g.Rows()
		s.InUse = g.matchers.InUse()
		s.Waiting = g.matchers.Waiting()
	}
	return s
}

// Close unpublishes the current generation. Outstanding leases stay valid
// until released.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	if g := m.current.Swap(nil); g != nil {
		g.decRef()
	}
	return nil
}

func (m *Manager) logInfo(ctx context.Context, msg string, snap *featureindex.Snapshot, d time.Duration) {
	if m.opts.Logger == nil {
		return
	}
	m.opts.Logger.InfoContext(ctx, msg,
		"version", snap.Version(),
		"rows", snap.Len(),
		"pool_size", m.opts.PoolSize,
		"duration", d,
	)
}

func (m *Manager) logError(ctx context.Context, msg string, snap *featureindex.Snapshot, err error) {
	if m.opts.Logger == nil {
		return
	}
	m.opts.Logger.ErrorContext(ctx, msg,
		"version", snap.Version(),
		"rows", snap.Len(),
		"error", err,
	)
}
