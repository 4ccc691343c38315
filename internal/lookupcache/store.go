package lookupcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"

	"rollcall/internal/normalize"
)

// DefaultRedisKey is the single key holding the serialized cache map.
const DefaultRedisKey = "rollcall:lookup-cache"

// encode writes the map through each entity's legacy JSON view.
func encode(entries map[string]normalize.Entity) ([]byte, error) {
	out := make(map[string]*normalize.Entity, len(entries))
	for k := range entries {
		e := entries[k]
		out[k] = &e
	}
	return json.Marshal(out)
}

func decode(data []byte) (map[string]normalize.Entity, error) {
	var in map[string]*normalize.Entity
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	out := make(map[string]normalize.Entity, len(in))
	for k, e := range in {
		if e != nil {
			out[k] = *e
		}
	}
	return out, nil
}

// RedisStore keeps the cache under one Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore builds a store on client using key, or DefaultRedisKey.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load reads the map; a missing key is an empty cache.
func (s *RedisStore) Load(ctx context.Context) (map[string]normalize.Entity, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]normalize.Entity{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return decode(data)
}

// Save overwrites the key with the whole map.
func (s *RedisStore) Save(ctx context.Context, entries map[string]normalize.Entity) error {
	data, err := encode(entries)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// FileStore keeps the cache in one JSON file.
type FileStore struct {
	Path string
}

// Load reads the file; a missing file is an empty cache.
func (s *FileStore) Load(_ context.Context) (map[string]normalize.Entity, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]normalize.Entity{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return map[string]normalize.Entity{}, nil
	}
	return decode(data)
}

// Save replaces the file atomically.
func (s *FileStore) Save(_ context.Context, entries map[string]normalize.Entity) error {
	data, err := encode(entries)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

// MemoryStore keeps the serialized map in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func (s *MemoryStore) Load(_ context.Context) (map[string]normalize.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return map[string]normalize.Entity{}, nil
	}
	return decode(s.data)
}

func (s *MemoryStore) Save(_ context.Context, entries map[string]normalize.Entity) error {
	data, err := encode(entries)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// NewStore picks a backend by name: "redis", "file" or "memory".
func NewStore(backend string, client *redis.Client, key, path string) (Store, error) {
	switch backend {
	case "redis":
		if client == nil {
			return nil, errors.New("redis lookup cache needs a redis client")
		}
		return NewRedisStore(client, key), nil
	case "file":
		if path == "" {
			return nil, errors.New("file lookup cache needs a path")
		}
		return &FileStore{Path: path}, nil
	case "memory", "":
		return &MemoryStore{}, nil
	}
	return nil, fmt.Errorf("unknown lookup cache backend %q", backend)
}
