package exhibitid

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordIdentify is called after each identification.
	// queries is the number of query descriptors, found reports a match.
	RecordIdentify(queries int, found bool, duration time.Duration, err error)

	// RecordAdd is called after each add. descriptors is the number kept.
	RecordAdd(descriptors int, duration time.Duration, err error)

	// RecordDelete is called after each delete. removed is the number of
	// index rows dropped.
	RecordDelete(removed int, duration time.Duration, err error)

	// RecordGenerationBuild is called after each generation build attempt.
	RecordGenerationBuild(version uint64, rows int, duration time.Duration, err error)

	// RecordLoad is called once after the initial index load.
	RecordLoad(records, skipped int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIdentify(int, bool, time.Duration, error)          {}
func (NoopMetricsCollector) RecordAdd(int, time.Duration, error)                     {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error)                  {}
func (NoopMetricsCollector) RecordGenerationBuild(uint64, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordLoad(int, int, time.Duration, error)               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IdentifyCount      atomic.Int64
	IdentifyFound      atomic.Int64
	IdentifyErrors     atomic.Int64
	IdentifyQueries    atomic.Int64
	IdentifyTotalNanos atomic.Int64
	AddCount           atomic.Int64
	AddErrors          atomic.Int64
	AddDescriptors     atomic.Int64
	DeleteCount        atomic.Int64
	DeleteErrors       atomic.Int64
	DeleteRows         atomic.Int64
	BuildCount         atomic.Int64
	BuildErrors        atomic.Int64
	BuildTotalNanos    atomic.Int64
	LastBuildVersion   atomic.Uint64
	LoadRecords        atomic.Int64
	LoadSkipped        atomic.Int64
}

// RecordIdentify implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIdentify(queries int, found bool, duration time.Duration, err error) {
	b.IdentifyCount.Add(1)
	b.IdentifyQueries.Add(int64(queries))
	b.IdentifyTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.IdentifyErrors.Add(1)
	} else if found {
		b.IdentifyFound.Add(1)
	}
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(descriptors int, duration time.Duration, err error) {
	b.AddCount.Add(1)
	if err != nil {
		b.AddErrors.Add(1)
		return
	}
	b.AddDescriptors.Add(int64(descriptors))
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(removed int, duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
		return
	}
	b.DeleteRows.Add(int64(removed))
}

// RecordGenerationBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGenerationBuild(version uint64, rows int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
		return
	}
	b.LastBuildVersion.Store(version)
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(records, skipped int, duration time.Duration, err error) {
	b.LoadRecords.Add(int64(records))
	b.LoadSkipped.Add(int64(skipped))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IdentifyCount:   b.IdentifyCount.Load(),
		IdentifyFound:   b.IdentifyFound.Load(),
		IdentifyErrors:  b.IdentifyErrors.Load(),
		IdentifyAvgNanos: avg(b.IdentifyTotalNanos.Load(), b.IdentifyCount.Load()),
		AddCount:        b.AddCount.Load(),
		AddErrors:       b.AddErrors.Load(),
		AddDescriptors:  b.AddDescriptors.Load(),
		DeleteCount:     b.DeleteCount.Load(),
		DeleteErrors:    b.DeleteErrors.Load(),
		DeleteRows:      b.DeleteRows.Load(),
		BuildCount:      b.BuildCount.Load(),
		BuildErrors:     b.BuildErrors.Load(),
		BuildAvgNanos:   avg(b.BuildTotalNanos.Load(), b.BuildCount.Load()),
		LastBuildVersion: b.LastBuildVersion.Load(),
		LoadRecords:     b.LoadRecords.Load(),
		LoadSkipped:     b.LoadSkipped.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IdentifyCount    int64
	IdentifyFound    int64
	IdentifyErrors   int64
	IdentifyAvgNanos int64
	AddCount         int64
	AddErrors        int64
	AddDescriptors   int64
	DeleteCount      int64
	DeleteErrors     int64
	DeleteRows       int64
	BuildCount       int64
	BuildErrors      int64
	BuildAvgNanos    int64
	LastBuildVersion uint64
	LoadRecords      int64
	LoadSkipped      int64
}
