package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/ppiankov/prospector/internal/model"
)

const keyPrefix = "prospector:v1:"

// Cache stores fetched page bodies between requests and runs
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// PageKey derives the cache key for a page body fetched from rawURL
func PageKey(rawURL string) string {
	hash := sha256.Sum256([]byte(rawURL))
	return keyPrefix + "page:" + hex.EncodeToString(hash[:])
}

// DefaultDir returns the XDG cache directory used when none is configured
func DefaultDir() string {
	return filepath.Join(xdg.CacheHome, "prospector", "pages")
}

// New builds the page cache described by cfg, or nil when caching is disabled
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	ttl := model.Seconds(cfg.TTL)
	if ttl <= 0 {
		ttl = time.Hour
	}
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir()
	}
	return NewLayeredCache(ttl, dir, ttl)
}
