// Package blobstore stores exhibit images outside the record store.
//
// BlobStore is the interface for writing and reading whole image blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and single-node setups
//   - s3.Store: Amazon S3 via the SDK upload manager
//   - minio.Store: MinIO and other S3-compatible storage
package blobstore
