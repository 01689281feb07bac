// Package blobstore abstracts the shared backing store. The in-memory
// and local filesystem implementations live here; S3 and MinIO adapters
// live in subpackages so their SDKs stay out of the core dependency
// graph for users who do not need them.
package blobstore
