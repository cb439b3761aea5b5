// Package resource implements the Controller for engine-wide limits.
//
// The Controller governs three resources:
//
//   - Memory: budget for packed generation matrices (non-blocking, fail-fast)
//   - Build concurrency: how many generations may train at once
//   - Load throughput: records per second pulled from the store at startup
//
// # Memory Management
//
// AcquireMemory is non-blocking and returns ErrMemoryLimitExceeded when the
// budget is exhausted. A generation build that cannot reserve memory fails
// and the previous generation stays current:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30,
//	})
//
//	if err := rc.AcquireMemory(trained.SizeBytes()); err != nil {
//	    // ErrMemoryLimitExceeded
//	}
//
// # Load Throttling
//
// Token bucket limiting the initial scan, so a cold start does not exhaust
// the provisioned read capacity of a remote store:
//
//	rc := resource.NewController(resource.Config{LoadRecordsPerSec: 500})
//	if err := rc.WaitLoad(ctx, len(chunk.Records)); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
