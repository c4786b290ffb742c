package engine

import (
	"fmt"
	"sync"
)

// CacheKey identifies one engine slot. Mode keeps backtest and live runs of
// the same pair from sharing a state machine.
type CacheKey struct {
	StrategyID string
	Symbol     string
	Mode       string
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.StrategyID, k.Symbol, k.Mode)
}

// Cache hands out at most one engine per key, building lazily on first use.
type Cache struct {
	mu      sync.Mutex
	engines map[CacheKey]*Engine
}

func NewCache() *Cache {
	return &Cache{engines: make(map[CacheKey]*Engine)}
}

// Get returns the engine for the key, invoking build on first access. The
// builder runs under the cache lock, so concurrent callers for the same key
// always receive the same instance.
func (c *Cache) Get(key CacheKey, build func() *Engine) *Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	if eng, ok := c.engines[key]; ok {
		return eng
	}
	eng := build()
	c.engines[key] = eng
	return eng
}

// Evict drops one slot, typically after its run finishes.
func (c *Cache) Evict(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.engines, key)
}

// Snapshots reports every cached engine's visible state.
func (c *Cache) Snapshots() []Snapshot {
	c.mu.Lock()
	engines := make([]*Engine, 0, len(c.engines))
	for _, eng := range c.engines {
		engines = append(engines, eng)
	}
	c.mu.Unlock()

	out := make([]Snapshot, 0, len(engines))
	for _, eng := range engines {
		out = append(out, eng.Snapshot())
	}
	return out
}

// Clear empties the cache. Used on shutdown.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engines = make(map[CacheKey]*Engine)
}
