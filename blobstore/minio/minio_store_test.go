package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulcraft-research/brainy-sub005/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-brainy"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "snapshots/latest", data))

	got, err := store.Get(ctx, "snapshots/latest")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = store.Get(ctx, "snapshots/missing")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	// Conditional create: second writer loses.
	require.NoError(t, store.Delete(ctx, "locks/write"))
	require.NoError(t, store.PutIfAbsent(ctx, "locks/write", []byte("owner-1")))
	err = store.PutIfAbsent(ctx, "locks/write", []byte("owner-2"))
	require.ErrorIs(t, err, blobstore.ErrAlreadyExists)

	keys, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Contains(t, keys, "snapshots/latest")

	require.NoError(t, store.Delete(ctx, "snapshots/latest"))
	require.NoError(t, store.Delete(ctx, "locks/write"))

	_, err = store.Get(ctx, "snapshots/latest")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}
