// Package connection establishes the store connection with bounded retries.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrConnectFailed is returned when every connection attempt failed.
var ErrConnectFailed = errors.New("connection: retries exhausted")

// Default retry settings.
const (
	DefaultMaxRetries = 20
	DefaultRetryDelay = 10 * time.Second
)

// State is the connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ConnectFunc performs a single connection attempt.
type ConnectFunc func(ctx context.Context) error

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Manager.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
	// Sleep replaces the timer-based wait. Used by tests.
	Sleep SleepFunc
}

// Manager drives the connect state machine.
type Manager struct {
	connect ConnectFunc
	opts    Options

	// connectMu serializes Connect calls; mu guards the fields below and
	// is never held across an attempt or a sleep.
	connectMu sync.Mutex

	mu       sync.Mutex
	state    State
	attempts int
	lastErr  error
}

// NewManager creates a Manager around fn.
func NewManager(fn ConnectFunc, opts Options) *Manager {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Manager{connect: fn, opts: opts}
}

// Connect attempts the connection up to MaxRetries times, sleeping
// RetryDelay between attempts. Failed is terminal: later calls return
// ErrConnectFailed immediately. Connect on a connected Manager is a no-op.
// State and Attempts stay observable while Connect runs.
func (m *Manager) Connect(ctx context.Context) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	switch m.state {
	case Connected:
		m.mu.Unlock()
		return nil
	case Failed:
		err := m.lastErr
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	m.state = Connecting
	m.attempts = 0
	m.mu.Unlock()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= m.opts.MaxRetries; attempt++ {
		attempts = attempt
		m.setAttempts(attempt)

		err := m.connect(ctx)
		if err == nil {
			m.finish(Connected, nil)
			m.log(ctx, slog.LevelInfo, "connected", slog.Int("attempt", attempt))
			return nil
		}

		lastErr = err
		m.log(ctx, slog.LevelWarn, "connect attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", m.opts.MaxRetries),
			slog.String("error", err.Error()),
		)

		if ctx.Err() != nil {
			break
		}
		if attempt < m.opts.MaxRetries {
			if err := m.opts.Sleep(ctx, m.opts.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	m.finish(Failed, lastErr)
	m.log(ctx, slog.LevelError, "connection failed",
		slog.Int("attempts", attempts),
		slog.String("error", lastErr.Error()),
	)
	return fmt.Errorf("%w after %d attempts: %w", ErrConnectFailed, attempts, lastErr)
}

func (m *Manager) setAttempts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = n
}

func (m *Manager) finish(state State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.lastErr = err
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of attempts made by the last Connect.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Disconnect moves a connected Manager back to Disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Connected {
		m.state = Disconnected
	}
}

func (m *Manager) log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	if m.opts.Logger == nil {
		return
	}
	m.opts.Logger.LogAttrs(ctx, level, msg, attrs...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
