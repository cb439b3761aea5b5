package exhibitid

import (
	"log/slog"
	"time"

	"github.com/hupe1980/exhibitid/internal/connection"
	"github.com/hupe1980/exhibitid/internal/identify"
)

const (
	// DefaultPoolSize is the number of matchers per generation.
	DefaultPoolSize = 10

	// DefaultMaxDescriptors is the number of strongest descriptors kept per exhibit.
	DefaultMaxDescriptors = 500
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger

	poolSize       int
	acquireTimeout time.Duration
	resolve        identify.Config
	maxDescriptors int

	maxRetries int
	retryDelay time.Duration
	sleep      connection.SleepFunc

	memoryLimit int64
	loadRate    int
	pageSize    int

	newExtractor func() Extractor
	extractors   int
}

// Option configures Open.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &exhibitid.BasicMetricsCollector{}
//	eng, _ := exhibitid.Open(ctx, st, exhibitid.WithMetricsCollector(metrics))
//	// ... use eng ...
//	stats := metrics.GetStats()
//	fmt.Printf("Identifications: %d, found: %d\n", stats.IdentifyCount, stats.IdentifyFound)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := exhibitid.NewJSONLogger(slog.LevelInfo)
//	eng, _ := exhibitid.Open(ctx, st, exhibitid.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithPoolSize sets the number of matchers per generation, which bounds
// concurrent identifications. Defaults to 10.
func WithPoolSize(n int) Option {
	return func(o *options) {
		o.poolSize = n
	}
}

// WithAcquireTimeout switches matcher and extractor pools from blocking
// acquisition to a timeout policy. Zero restores blocking.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *options) {
		o.acquireTimeout = d
	}
}

// WithK sets the number of nearest neighbors retrieved per query
// descriptor. Only the first neighbor votes; the second feeds the ratio test.
func WithK(k int) Option {
	return func(o *options) {
		o.resolve.K = k
	}
}

// WithRatioTest enables the ratio test: a query descriptor votes only when
// its best distance is below ratio times its second best. Off by default.
// It raises WithK to 2 when set lower.
func WithRatioTest(ratio float64) Option {
	return func(o *options) {
		o.resolve.RatioTest = true
		o.resolve.Ratio = ratio
	}
}

// WithMinVotes sets the minimum number of votes a winner needs. Defaults to 1.
func WithMinVotes(n int) Option {
	return func(o *options) {
		o.resolve.MinVotes = n
	}
}

// WithMaxDescriptors caps the descriptors kept per added exhibit. The
// strongest keypoints by response win. Defaults to 500.
func WithMaxDescriptors(n int) Option {
	return func(o *options) {
		o.maxDescriptors = n
	}
}

// WithMaxRetries sets the number of store connection attempts. Defaults to 20.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.maxRetries = n
	}
}

// WithRetryDelay sets the fixed delay between connection attempts.
// Defaults to 10s.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		o.retryDelay = d
	}
}

// WithMemoryLimit caps the memory held by trained generations. A rebuild
// that would exceed it fails and the previous generation stays current.
//
// The limit counts every live generation. While a new generation is built
// the current one is still held, and it stays held until its last reader
// releases it, so a rebuild needs room for both. Once one generation takes
// more than about half the limit, every later rebuild fails until exhibits
// are deleted. Size the limit at twice the largest expected generation;
// a generation takes 32 bytes per indexed descriptor.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithLoadRate throttles the initial index load to recordsPerSec.
func WithLoadRate(recordsPerSec int) Option {
	return func(o *options) {
		o.loadRate = recordsPerSec
	}
}

// WithPageSize sets the store page size used by the initial load.
func WithPageSize(n int) Option {
	return func(o *options) {
		o.pageSize = n
	}
}

// WithExtractors configures a pool of n feature extractors created by
// newFn. Required by IdentifyImage and AddExhibitImages.
func WithExtractors(newFn func() Extractor, n int) Option {
	return func(o *options) {
		o.newExtractor = newFn
		o.extractors = n
	}
}

func withSleep(fn connection.SleepFunc) Option {
	return func(o *options) {
		o.sleep = fn
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		poolSize:         DefaultPoolSize,
		maxDescriptors:   DefaultMaxDescriptors,
		maxRetries:       connection.DefaultMaxRetries,
		retryDelay:       connection.DefaultRetryDelay,
		extractors:       DefaultPoolSize,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.poolSize <= 0 {
		o.poolSize = DefaultPoolSize
	}
	if o.maxDescriptors <= 0 {
		o.maxDescriptors = DefaultMaxDescriptors
	}
	if o.extractors <= 0 {
		o.extractors = DefaultPoolSize
	}
	o.resolve = o.resolve.Normalize()
	return o
}
