package engine

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultInflightTTL = 30 * time.Second

// InflightGuard marks create requests that are currently being processed.
// Entries expire after ttl so an abandoned marker never blocks for long.
type InflightGuard struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewInflightGuard(ttl time.Duration) *InflightGuard {
	if ttl <= 0 {
		ttl = defaultInflightTTL
	}
	return &InflightGuard{ttl: ttl, entries: map[string]time.Time{}}
}

// Key builds the composite guard key. Requests in the same ttl-sized time
// bucket share a key.
func (g *InflightGuard) Key(callerID, scope, subject string, now time.Time) string {
	bucket := now.UnixNano() / int64(g.ttl)
	return callerID + "|" + scope + "|" + strings.ToLower(strings.TrimSpace(subject)) + "|" + strconv.FormatInt(bucket, 10)
}

// Acquire marks key in flight. It returns false if a live marker exists.
func (g *InflightGuard) Acquire(key string, now time.Time) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if at, exists := g.entries[key]; exists && now.Sub(at) < g.ttl {
		return nil, false
	}
	g.entries[key] = now
	return func() {
		g.mu.Lock()
		if at, ok := g.entries[key]; ok && at.Equal(now) {
			delete(g.entries, key)
		}
		g.mu.Unlock()
	}, true
}

// Evict drops markers older than ttl and returns how many were removed.
func (g *InflightGuard) Evict(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for key, at := range g.entries {
		if now.Sub(at) >= g.ttl {
			delete(g.entries, key)
			n++
		}
	}
	return n
}

func (g *InflightGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
