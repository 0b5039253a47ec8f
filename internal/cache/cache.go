package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/lexicite/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// KeyPrefix namespaces every key; bump the version when cached shapes change
const KeyPrefix = "lexicite:v1:"

// Key hashes the given parts into a namespaced cache key. Parts are
// separated unambiguously, so ("ab", "c") and ("a", "bc") differ.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return KeyPrefix + hex.EncodeToString(hash[:])
}

// GetJSON loads and decodes a cached value. Undecodable entries count as a miss.
func GetJSON[T any](c Cache, key string) (T, bool) {
	var zero T
	data, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false
	}
	return v, true
}

// SetJSON encodes and stores v
func SetJSON[T any](c Cache, key string, v T, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Set(key, data, ttl)
}

// New builds the cache described by cfg. It returns nil when caching is
// disabled; callers treat a nil Cache as "no caching".
func New(cfg model.CacheConfig) (Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.RedisAddr != "" {
		return NewRedisCache(cfg.RedisAddr, cfg.DiskTTL)
	}
	return NewLayeredCache(cfg.MemoryTTL, cfg.Directory, cfg.DiskTTL), nil
}
