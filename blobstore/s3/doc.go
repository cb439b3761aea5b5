// Package s3 implements blobstore.BlobStore on Amazon S3.
//
// Uploads go through the SDK upload manager with CRC32C checksums; large
// images are split into concurrent multipart uploads automatically.
package s3
