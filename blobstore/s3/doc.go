// Package s3 provides blobstore adapters for Amazon S3, with an
// optional DynamoDB layer for coordination keys that need strong
// compare-and-swap semantics.
package s3
