// Package minio provides a blobstore adapter for MinIO and other
// S3-compatible object stores.
package minio
