package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for memory held by trained
	// generations, counting every generation still alive. If 0, no hard
	// limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxConcurrentBuilds is the maximum number of generations trained at
	// the same time. If 0, defaults to 1.
	MaxConcurrentBuilds int64

	// LoadRecordsPerSec throttles how fast records are pulled from the
	// store during the initial index load. If 0, unlimited.
	LoadRecordsPerSec int
}

// Controller manages engine-wide resources (memory, build concurrency, load throughput).
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	buildSem *semaphore.Weighted

	// Load throughput
	loadLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentBuilds <= 0 {
		cfg.MaxConcurrentBuilds = 1
	}

	c := &Controller{
		cfg:      cfg,
		buildSem: semaphore.NewWeighted(cfg.MaxConcurrentBuilds),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.LoadRecordsPerSec > 0 {
		c.loadLimiter = rate.NewLimiter(rate.Limit(cfg.LoadRecordsPerSec), cfg.LoadRecordsPerSec)
	}

	return c
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if limit would be exceeded.
// Non-blocking - callers control retry/backoff policy.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireBuild reserves a build slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireBuild(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.buildSem.Acquire(ctx, 1)
}

// ReleaseBuild releases a build slot.
func (c *Controller) ReleaseBuild() {
	if c == nil {
		return
	}
	c.buildSem.Release(1)
}

// WaitLoad blocks until the load throttle admits n more records.
// Batches larger than the burst are admitted in burst-sized steps.
func (c *Controller) WaitLoad(ctx context.Context, n int) error {
	if c == nil || c.loadLimiter == nil || n <= 0 {
		return nil
	}
	burst := c.loadLimiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := c.loadLimiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
