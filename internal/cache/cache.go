// Package cache implements the constitutional-memory cache (C9): a small
// per-folder (and global) LRU with a TTL, budgeted by token count so a
// cache hit can never blow the caller's token budget.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/memento-index/memento/internal/tokenbudget"
	"github.com/memento-index/memento/pkg/types"
)

// Config holds the cache's tunables.
type Config struct {
	TTL          time.Duration
	EntriesPerKey int
	TokenBudget  int
}

// DefaultConfig returns standard tuning: 5-minute TTL, ~20 entries per key,
// 2000 token budget per key.
func DefaultConfig() Config {
	return Config{TTL: 5 * time.Minute, EntriesPerKey: 20, TokenBudget: 2000}
}

type entry struct {
	memories []*types.Memory
	storedAt time.Time
}

// Cache holds one LRU of entries per spec_folder key, plus a dedicated
// "global" key for cross-folder constitutional memories.
type Cache struct {
	mu     sync.Mutex
	cfg    Config
	lru    *lru.Cache[string, *entry]
	tokens tokenbudget.Config
	now    func() time.Time
}

// GlobalKey is the cache key used for constitutional memories that apply
// across every spec_folder.
const GlobalKey = "__global__"

// New builds a cache honoring cfg. EntriesPerKey bounds the LRU's total
// capacity (folder keys plus the global key share one eviction pool).
func New(cfg Config) (*Cache, error) {
	capacity := cfg.EntriesPerKey
	if capacity <= 0 {
		capacity = 20
	}
	l, err := lru.New[string, *entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{
		cfg:    cfg,
		lru:    l,
		tokens: tokenbudget.New(tokenbudget.Config{MaxTokens: cfg.TokenBudget, SafetyBuffer: 1.0}),
		now:    time.Now,
	}, nil
}

// Get returns the cached constitutional memories for key, honoring TTL.
// The bool is false on a miss or an expired entry (which is evicted).
func (c *Cache) Get(key string) ([]*types.Memory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.cfg.TTL {
		c.lru.Remove(key)
		return nil, false
	}
	return e.memories, true
}

// Set stores memories under key, truncating to the cache's token budget and
// to EntriesPerKey entries so a single key can never return more than the
// caller's embedding-prepend budget allows.
func (c *Cache) Set(key string, memories []*types.Memory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]any, len(memories))
	for i, m := range memories {
		items[i] = m
	}
	result := c.tokens.Truncate(items)

	perKey := c.cfg.EntriesPerKey
	if perKey <= 0 {
		perKey = 20
	}

	trimmed := make([]*types.Memory, 0, len(result.Items))
	for _, it := range result.Items {
		if len(trimmed) >= perKey {
			break
		}
		trimmed = append(trimmed, it.(*types.Memory))
	}

	c.lru.Add(key, &entry{memories: trimmed, storedAt: c.now()})
}

// InvalidateFolder drops the cache entry for one spec_folder, used when a
// memory in that folder is written, updated, or deleted.
func (c *Cache) InvalidateFolder(specFolder string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(specFolder)
}

// InvalidateGlobal drops the cross-folder constitutional cache entry.
func (c *Cache) InvalidateGlobal() {
	c.InvalidateFolder(GlobalKey)
}

// Purge clears every cached entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
