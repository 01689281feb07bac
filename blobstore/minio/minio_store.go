package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/soulcraft-research/brainy-sub005/blobstore"
)

// Store implements blobstore.Store for MinIO and other S3-compatible
// object stores.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a MinIO object store. rootPrefix is prepended to all
// keys (e.g. "brainy/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func notFound(err error) bool {
	errResp := minio.ToErrorResponse(err)
	return errResp.Code == "NoSuchKey" || errResp.Code == "NotFound"
}

// Get reads the full object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(key), minio.GetObjectOptions{})
	if err != nil {
		if notFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if notFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Put writes an object, replacing any existing value.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

// PutIfAbsent writes an object only if the key does not exist yet.
func (s *Store) PutIfAbsent(ctx context.Context, key string, data []byte) error {
	opts := minio.PutObjectOptions{}
	opts.SetMatchETagExcept("*")
	_, err := s.client.PutObject(ctx, s.bucket, s.key(key), bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "PreconditionFailed" {
			return blobstore.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(key), minio.RemoveObjectOptions{})
	if err != nil && !notFound(err) {
		return err
	}
	return nil
}

// CompareAndDelete removes an object only while its stored value still
// equals expected. minio-go has no conditional remove, so the value is
// compared client-side and the object deleted by the version observed
// during the read; buckets without versioning fall back to a plain
// remove, and lock users on such buckets should prefer a store with a
// server-side condition.
func (s *Store) CompareAndDelete(ctx context.Context, key string, expected []byte) error {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(key), minio.GetObjectOptions{})
	if err != nil {
		if notFound(err) {
			return blobstore.ErrPreconditionFailed
		}
		return err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if notFound(err) {
			return blobstore.ErrPreconditionFailed
		}
		return err
	}
	if !bytes.Equal(data, expected) {
		return blobstore.ErrPreconditionFailed
	}

	stat, err := obj.Stat()
	if err != nil {
		return err
	}
	err = s.client.RemoveObject(ctx, s.bucket, s.key(key), minio.RemoveObjectOptions{
		VersionID: stat.VersionID,
	})
	if err != nil && !notFound(err) {
		return err
	}
	return nil
}

// List returns the keys under prefix in lexicographic order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.key(prefix)
	var keys []string

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		key := obj.Key
		if s.prefix != "" {
			key = strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
