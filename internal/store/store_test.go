package store

import (
	"strings"
	"sync"
	"testing"

	"github.com/mmcdole/catalog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKV(t *testing.T, persistent bool, opts ...Option) *KV {
	t.Helper()
	dir := ""
	if persistent {
		dir = t.TempDir()
	}
	kv, err := NewKV(dir, "https://api.example.com", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func forEachMode(t *testing.T, fn func(t *testing.T, persistent bool)) {
	t.Run("memory", func(t *testing.T) { fn(t, false) })
	t.Run("bolt", func(t *testing.T) { fn(t, true) })
}

func TestKV_Operations(t *testing.T) {
	forEachMode(t, func(t *testing.T, persistent bool) {
		kv := newTestKV(t, persistent)

		_, ok, err := kv.Get("missing")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, kv.Set("a", "1"))
		require.NoError(t, kv.Set("b", "2"))
		require.NoError(t, kv.Set("a", "3"))

		v, ok, err := kv.Get("a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "3", v)

		keys, err := kv.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, keys)

		require.NoError(t, kv.Remove("a"))
		require.NoError(t, kv.Remove("a"))
		_, ok, err = kv.Get("a")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, kv.RemoveMany([]string{"b", "nope"}))
		keys, err = kv.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)
		assert.Zero(t, kv.Used())
	})
}

func TestKV_Quota(t *testing.T) {
	forEachMode(t, func(t *testing.T, persistent bool) {
		kv := newTestKV(t, persistent, WithQuota(64))

		require.NoError(t, kv.Set("k1", strings.Repeat("x", 20)))
		err := kv.Set("k2", strings.Repeat("y", 60))
		require.ErrorIs(t, err, domain.ErrStorageFull)

		// The rejected write left nothing behind
		_, ok, err := kv.Get("k2")
		require.NoError(t, err)
		assert.False(t, ok)

		// Shrinking an existing value is always allowed
		require.NoError(t, kv.Set("k1", "small"))

		require.NoError(t, kv.RemoveMany([]string{"k1"}))
		require.NoError(t, kv.Set("k2", strings.Repeat("y", 40)))
	})
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("catalog payload ", 1000)

	kv, err := NewKV(dir, "https://api.example.com")
	require.NoError(t, err)
	require.NoError(t, kv.Set("big", big))
	require.NoError(t, kv.Set("small", "v"))
	used := kv.Used()
	// Large repetitive values are compressed on disk
	assert.Less(t, used, int64(len(big)))
	require.NoError(t, kv.Close())

	kv, err = NewKV(dir, "https://API.example.com/")
	require.NoError(t, err)
	defer kv.Close()

	assert.Equal(t, used, kv.Used())
	v, ok, err := kv.Get("big")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big, v)
}

func TestHashEndpoint(t *testing.T) {
	assert.Equal(t, hashEndpoint("https://api.example.com"), hashEndpoint("HTTPS://api.example.com/"))
	assert.NotEqual(t, hashEndpoint("https://api.example.com"), hashEndpoint("https://staging.example.com"))
	assert.Len(t, hashEndpoint("x"), 12)
}

func TestCodec_UnknownEncoding(t *testing.T) {
	c, err := newCodec()
	require.NoError(t, err)
	defer c.close()

	_, err = c.decode([]byte("?abc"))
	require.ErrorIs(t, err, errBadFrame)
	_, err = c.decode(nil)
	require.ErrorIs(t, err, errBadFrame)

	v, err := c.decode(c.encode("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}

// evict drops key from the read cache so the next Get goes to bbolt.
func evict(kv *KV, key string) {
	kv.mu.Lock()
	delete(kv.cache, key)
	kv.mu.Unlock()
}

// readConcurrently runs readers calling Get(key) while write runs.
func readConcurrently(t *testing.T, kv *KV, key string, write func() error) {
	t.Helper()
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 5; j++ {
				_, _, _ = kv.Get(key)
			}
		}()
	}
	close(start)
	require.NoError(t, write())
	wg.Wait()
}

func TestKV_RemoveWithConcurrentReaders(t *testing.T) {
	kv := newTestKV(t, true)

	for round := 0; round < 500; round++ {
		require.NoError(t, kv.Set("k", "v"))
		evict(kv, "k")

		readConcurrently(t, kv, "k", func() error { return kv.Remove("k") })

		_, ok, err := kv.Get("k")
		require.NoError(t, err)
		require.False(t, ok, "round %d: removed key still readable", round)
	}
}

func TestKV_SetWithConcurrentReaders(t *testing.T) {
	kv := newTestKV(t, true)

	for round := 0; round < 500; round++ {
		require.NoError(t, kv.Set("k", "old"))
		evict(kv, "k")

		readConcurrently(t, kv, "k", func() error { return kv.Set("k", "new") })

		v, ok, err := kv.Get("k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "new", v, "round %d: stale value served", round)
	}
}

func TestKV_ReadAfterWriteStillPromotes(t *testing.T) {
	kv := newTestKV(t, true)
	require.NoError(t, kv.Set("k", "v"))
	evict(kv, "k")

	v, ok, err := kv.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	kv.mu.RLock()
	cached, promoted := kv.cache["k"]
	kv.mu.RUnlock()
	assert.True(t, promoted)
	assert.Equal(t, "v", cached)
}
