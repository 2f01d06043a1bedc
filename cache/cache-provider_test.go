package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providers(t *testing.T) map[string]CacheProvider {
	t.Helper()
	return map[string]CacheProvider{
		"memory": NewMemCache(),
		"sqlite": NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db")),
	}
}

func TestRoundTrip(t *testing.T) {
	for name, provider := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, provider.Put("static-cache-v1", "GET:/app.js", []byte("body")))

			bytes, ok, err := provider.Get("static-cache-v1", "GET:/app.js")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("body"), bytes)
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, provider := range providers(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := provider.Get("static-cache-v1", "GET:/nope")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPutReplacesExistingEntry(t *testing.T) {
	for name, provider := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, provider.Put("b", "k", []byte("one")))
			require.NoError(t, provider.Put("b", "k", []byte("two")))

			bytes, ok, err := provider.Get("b", "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("two"), bytes)

			keys, err := provider.Keys("b")
			require.NoError(t, err)
			assert.Len(t, keys, 1)
		})
	}
}

func TestEmptyBucketIsEnumerable(t *testing.T) {
	for name, provider := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, provider.OpenBucket("static-cache-v1"))

			names, err := provider.Buckets()
			require.NoError(t, err)
			assert.Contains(t, names, "static-cache-v1")
		})
	}
}

func TestDeleteBucketRemovesEntries(t *testing.T) {
	for name, provider := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, provider.Put("old", "k1", []byte("a")))
			require.NoError(t, provider.Put("old", "k2", []byte("b")))
			require.NoError(t, provider.Put("current", "k1", []byte("c")))

			require.NoError(t, provider.DeleteBucket("old"))

			names, err := provider.Buckets()
			require.NoError(t, err)
			assert.NotContains(t, names, "old")
			assert.Contains(t, names, "current")

			_, ok, err := provider.Get("old", "k1")
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, err = provider.Get("current", "k1")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestDeleteMissingBucketIsNoop(t *testing.T) {
	for name, provider := range providers(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, provider.DeleteBucket("never-existed"))
		})
	}
}

func TestConcurrentWrites(t *testing.T) {
	for name, provider := range providers(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			errs := make(chan error, 200)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					for j := 0; j < 4; j++ {
						key := fmt.Sprintf("GET:/asset-%d-%d", i, j)
						if err := provider.Put("static-cache-v1", key, []byte("body")); err != nil {
							errs <- err
						}
					}
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Errorf("Put failed: %v", err)
			}

			keys, err := provider.Keys("static-cache-v1")
			require.NoError(t, err)
			assert.Len(t, keys, 200)
		})
	}
}

func TestConcurrentWritesAndBucketDeletes(t *testing.T) {
	for name, provider := range providers(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					key := fmt.Sprintf("GET:/asset-%d", i)
					assert.NoError(t, provider.Put("static-cache-v1", key, []byte("body")))
				}(i)
				go func() {
					defer wg.Done()
					assert.NoError(t, provider.DeleteBucket("static-cache-v0"))
				}()
			}
			wg.Wait()
		})
	}
}

func TestPurge(t *testing.T) {
	for name, provider := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, provider.Put("b", "k", []byte("body")))

			provider.Purge("b", "k")

			_, ok, err := provider.Get("b", "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}
