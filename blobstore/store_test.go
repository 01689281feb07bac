package blobstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put get round trip", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "a/one", []byte("alpha")))

		data, err := store.Get(ctx, "a/one")
		require.NoError(t, err)
		assert.Equal(t, []byte("alpha"), data)
	})

	t.Run("put replaces", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "a/one", []byte("beta")))

		data, err := store.Get(ctx, "a/one")
		require.NoError(t, err)
		assert.Equal(t, []byte("beta"), data)
	})

	t.Run("put if absent", func(t *testing.T) {
		require.NoError(t, store.PutIfAbsent(ctx, "locks/x", []byte("owner-1")))
		require.ErrorIs(t, store.PutIfAbsent(ctx, "locks/x", []byte("owner-2")), ErrAlreadyExists)

		data, err := store.Get(ctx, "locks/x")
		require.NoError(t, err)
		assert.Equal(t, []byte("owner-1"), data)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "locks/x"))
		_, err := store.Get(ctx, "locks/x")
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, store.Delete(ctx, "locks/x"), "delete missing is not an error")

		require.NoError(t, store.PutIfAbsent(ctx, "locks/x", []byte("owner-2")), "key is free again")
		require.NoError(t, store.Delete(ctx, "locks/x"))
	})

	t.Run("compare and delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "locks/y", []byte("owner-1")))

		require.ErrorIs(t, store.CompareAndDelete(ctx, "locks/y", []byte("owner-2")), ErrPreconditionFailed)
		data, err := store.Get(ctx, "locks/y")
		require.NoError(t, err, "failed precondition must leave the object alone")
		assert.Equal(t, []byte("owner-1"), data)

		require.NoError(t, store.CompareAndDelete(ctx, "locks/y", []byte("owner-1")))
		_, err = store.Get(ctx, "locks/y")
		require.ErrorIs(t, err, ErrNotFound)

		require.ErrorIs(t, store.CompareAndDelete(ctx, "locks/y", []byte("owner-1")), ErrPreconditionFailed,
			"missing key counts as a failed precondition")
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "a/two", []byte("2")))
		require.NoError(t, store.Put(ctx, "b/one", []byte("3")))

		keys, err := store.List(ctx, "a/")
		require.NoError(t, err)
		assert.Equal(t, []string{"a/one", "a/two"}, keys)

		keys, err = store.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a/one", "a/two", "b/one"}, keys)
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	testStoreContract(t, store)
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	original := []byte("immutable")
	require.NoError(t, store.Put(ctx, "k", original))
	original[0] = 'X'

	data, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), data)

	data[0] = 'Y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), again)
}

func TestPutIfAbsentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const contenders = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.PutIfAbsent(ctx, "locks/write", []byte("me")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

type flakyStore struct {
	*MemoryStore
	failures int
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient network error")
	}
	return f.MemoryStore.Get(ctx, key)
}

func TestRetryStoreRecovers(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2}
	require.NoError(t, inner.Put(ctx, "k", []byte("v")))

	store := NewRetryStore(inner)

	data, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
}

func TestRetryStoreGivesUp(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 100}

	store := NewRetryStore(inner, func(o *RetryOptions) { o.MaxAttempts = 2 })

	_, err := store.Get(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, 98, inner.failures)
}

func TestRetryStoreNotFoundIsTerminal(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{MemoryStore: NewMemoryStore()}

	store := NewRetryStore(inner)

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
