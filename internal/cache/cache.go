// Package cache provides caching for rendered frames and query results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	FrameCacheSizeMB int
	FrameTTL         time.Duration
	QueryCacheSize   int
}

// Manager manages the frame and query caches. Frames are encoded PNGs
// (heatmap and minimap); query results are JSON payloads such as search
// match sets and reaction colorings.
type Manager struct {
	frameCache *bigcache.BigCache
	queryCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	frameCacheConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.FrameTTL,
		CleanWindow:        cfg.FrameTTL / 2,
		MaxEntriesInWindow: 100000,
		MaxEntrySize:       256 * 1024, // 256KB per frame
		HardMaxCacheSize:   cfg.FrameCacheSizeMB,
		Verbose:            false,
	}

	frameCache, err := bigcache.New(context.Background(), frameCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame cache: %w", err)
	}

	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Manager{
		frameCache: frameCache,
		queryCache: queryCache,
	}, nil
}

// GetFrame retrieves an encoded frame from cache.
func (m *Manager) GetFrame(key string) ([]byte, bool) {
	data, err := m.frameCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetFrame stores an encoded frame in cache.
func (m *Manager) SetFrame(key string, data []byte) error {
	return m.frameCache.Set(key, data)
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queryCache.Add(key, data)
}

// FrameKey generates a cache key for one rendered frame. kind is
// "heatmap" or "minimap"; state carries whatever view parameters go into
// the pixels (ordering source, viewport, active tracks, search query).
// Equal state always produces an equal key, so a frame is rendered once
// no matter how many sessions look at the same view.
func FrameKey(kind, dataset string, width, height int, state ...string) string {
	base := fmt.Sprintf("%s:%s:%dx%d", kind, dataset, width, height)
	if len(state) == 0 {
		return base
	}

	h := sha256.New()
	h.Write([]byte(base))
	for _, s := range state {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return base + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// SearchKey generates a cache key for a search match set.
func SearchKey(dataset, query string) string {
	h := sha256.Sum256([]byte(strings.ToLower(query)))
	return fmt.Sprintf("search:%s:%s", dataset, hex.EncodeToString(h[:])[:16])
}

// ReactionKey generates a cache key for a reaction coloring.
func ReactionKey(dataset, metric string) string {
	return fmt.Sprintf("rxn:%s:%s", dataset, metric)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"frame_cache_len": m.frameCache.Len(),
		"frame_cache_cap": m.frameCache.Capacity(),
		"query_cache_len": m.queryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.frameCache.Close()
}
