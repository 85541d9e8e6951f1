package strategy

import (
	"sync"
	"time"
)

// ===== SIGNAL CACHE =====

// SignalCache tracks signal hashes under cooldown. Expired entries are
// pruned lazily on insert, so the map stays bounded by signal flow rather
// than needing a sweeper goroutine.
type SignalCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewSignalCache builds an empty cooldown cache.
func NewSignalCache() *SignalCache {
	return &SignalCache{entries: make(map[string]time.Time)}
}

// InCooldown reports whether hash has an unexpired cooldown entry.
func (c *SignalCache) InCooldown(hash string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.entries[hash]
	return ok && exp.After(now)
}

// Add puts hash in cooldown until now+ttl, pruning expired entries first.
func (c *SignalCache) Add(hash string, ttl time.Duration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, exp := range c.entries {
		if !exp.After(now) {
			delete(c.entries, h)
		}
	}
	c.entries[hash] = now.Add(ttl)
}

// Len returns the number of entries, expired ones included.
func (c *SignalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ===== EXECUTED SET =====

// ExecutedSignalSet tracks hashes already acted on within the current
// cycle, so the same signal cannot fire twice even when two strategies
// produce it. The controller clears it at cycle start.
type ExecutedSignalSet struct {
	mu     sync.Mutex
	hashes map[string]struct{}
}

// NewExecutedSignalSet builds an empty per-cycle set.
func NewExecutedSignalSet() *ExecutedSignalSet {
	return &ExecutedSignalSet{hashes: make(map[string]struct{})}
}

// Clear empties the set for a new cycle.
func (s *ExecutedSignalSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes = make(map[string]struct{})
}

// Seen reports whether hash was already acted on this cycle.
func (s *ExecutedSignalSet) Seen(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hashes[hash]
	return ok
}

// Mark records hash as acted on this cycle.
func (s *ExecutedSignalSet) Mark(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[hash] = struct{}{}
}
