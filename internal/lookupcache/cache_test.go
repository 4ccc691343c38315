package lookupcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/normalize"
)

func entity(t *testing.T, raw map[string]any) normalize.Entity {
	t.Helper()
	e, ok := normalize.NormalizeEntity(raw, normalize.RoleStudent)
	require.True(t, ok)
	return *e
}

func TestCache_GetPutByValue(t *testing.T) {
	c := New(nil, nil)
	ana := entity(t, map[string]any{"StudentID": 7, "FirstName": "Ana", "LastName": "Li"})

	c.Put(normalize.NumericID(7), ana)
	got, ok := c.Get(normalize.StringID("7"))
	require.True(t, ok)
	assert.Equal(t, ana, got)

	_, ok = c.Get(normalize.NumericID(8))
	assert.False(t, ok)

	c.Put(normalize.ID{}, ana)
	assert.Equal(t, 1, c.Len())
}

func TestCache_LastWriteWins(t *testing.T) {
	c := New(nil, nil)
	c.Put(normalize.NumericID(1), entity(t, map[string]any{"id": 1, "name": "Old"}))
	c.Put(normalize.NumericID(1), entity(t, map[string]any{"id": 1, "name": "New"}))

	got, _ := c.Get(normalize.NumericID(1))
	assert.Equal(t, "New", got.DisplayName)
}

func TestCache_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Store{
		"memory": &MemoryStore{},
		"file":   &FileStore{Path: filepath.Join(t.TempDir(), "nested", "cache.json")},
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			first := New(store, nil)
			require.NoError(t, first.Load(ctx))
			assert.Zero(t, first.Len())

			ana := entity(t, map[string]any{"StudentID": 7, "FirstName": "Ana", "LastName": "Li", "Email": "ana@school.test"})
			first.Put(ana.ID, ana)
			require.NoError(t, first.Persist(ctx))

			second := New(store, nil)
			second.Put(normalize.NumericID(9), entity(t, map[string]any{"id": 9}))
			require.NoError(t, second.Load(ctx))
			assert.Equal(t, 2, second.Len())

			got, ok := second.Get(normalize.NumericID(7))
			require.True(t, ok)
			assert.Equal(t, ana, got)
		})
	}
}

func TestCache_Clear(t *testing.T) {
	ctx := context.Background()
	store := &MemoryStore{}
	c := New(store, nil)
	c.Put(normalize.NumericID(1), entity(t, map[string]any{"id": 1}))
	require.NoError(t, c.Persist(ctx))

	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Len())

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	c := New(&FileStore{Path: path}, nil)
	assert.Error(t, c.Load(context.Background()))
}

func TestNewStore(t *testing.T) {
	s, err := NewStore("memory", nil, "", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore("file", nil, "", "/tmp/x.json")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = NewStore("redis", nil, "", "")
	assert.Error(t, err)

	_, err = NewStore("etcd", nil, "", "")
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("ROLLCALL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROLLCALL_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	key := "rollcall:test:" + t.Name()
	t.Cleanup(func() { client.Del(ctx, key) })
	store := NewRedisStore(client, key)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	c := New(store, nil)
	ana := entity(t, map[string]any{"StudentID": "7", "FirstName": "Ana"})
	c.Put(ana.ID, ana)
	require.NoError(t, c.Persist(ctx))

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, ana, loaded["7"])
}
