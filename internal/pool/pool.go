// Package pool provides a bounded, blocking object pool.
//
// A Pool hands out a fixed set of items. Acquire blocks until an item is
// free; Release hands the item back and wakes exactly one waiter. Items are
// never shared between concurrent holders. The pool does not reset items:
// callers must restore item state before reuse.
//
// A pool smaller than the sustained concurrent demand starves callers. The
// pool never grows to compensate; use WithAcquireTimeout to turn unbounded
// waiting into back-pressure.
package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrAcquireTimeout is returned when the timeout policy expires before an
// item became available.
var ErrAcquireTimeout = errors.New("pool: acquire timeout")

type options struct {
	timeout time.Duration
}

// Option configures a Pool.
type Option func(*options)

// WithAcquireTimeout switches the pool from the blocking policy to the
// timeout policy. A non-positive duration keeps the blocking policy.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Pool is a fixed-capacity pool of items of type T.
type Pool[T any] struct {
	items   chan T
	timeout time.Duration
	inUse   atomic.Int64
	waiting atomic.Int64
}

// New creates a pool holding the given items. The capacity is len(items).
func New[T any](items []T, optFns ...Option) *Pool[T] {
	if len(items) == 0 {
		panic("pool: capacity must be positive")
	}

	var o options
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	p := &Pool[T]{
		items:   make(chan T, len(items)),
		timeout: o.timeout,
	}
	for _, it := range items {
		p.items <- it
	}
	return p
}

// Acquire takes an item from the pool.
//
// Under the blocking policy it waits until an item is released or ctx is
// done. Under the timeout policy it additionally fails with
// ErrAcquireTimeout once the configured timeout elapses.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	// Fast path.
	select {
	case it := <-p.items:
		p.inUse.Add(1)
		return it, nil
	default:
	}

	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	var expired <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var zero T
	select {
	case it := <-p.items:
		p.inUse.Add(1)
		return it, nil
	case <-expired:
		return zero, ErrAcquireTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Release returns an item to the pool. Releasing more items than were
// acquired is a programming error and panics.
func (p *Pool[T]) Release(it T) {
	p.inUse.Add(-1)
	select {
	case p.items <- it:
	default:
		p.inUse.Add(1)
		panic("pool: release into full pool")
	}
}

// Cap returns the fixed capacity of the pool.
func (p *Pool[T]) Cap() int {
	return cap(p.items)
}

// InUse returns the number of items currently held outside the pool.
func (p *Pool[T]) InUse() int {
	return int(p.inUse.Load())
}

// Waiting returns the number of callers blocked in Acquire.
func (p *Pool[T]) Waiting() int {
	return int(p.waiting.Load())
}
