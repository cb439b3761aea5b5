// Package minio provides a BlobStore implementation using the MinIO client.
//
// MinIO is an S3-compatible object storage system. This package uses the
// official MinIO Go client and also works against Ceph, SeaweedFS, Garage
// and similar servers.
//
// # Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
//	    Secure: false,
//	})
//	images := minio.NewStore(client, "exhibits", "images/")
package minio
