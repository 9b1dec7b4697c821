package dispatch

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Resolution cache
//
// Overload resolution only depends on the registry, the method name and the
// shape of the arguments (kinds, object classes and constness), so its
// outcome can be remembered per shape. Sequences and maps are matched by
// their contents, not by their shape; calls carrying them bypass the cache.
// Failed resolutions are never cached.

type resolutionKey struct {
	registry       uint64
	name           string
	static         bool
	shape          string
	hasBlock       bool
	constReceiver  bool
	allowProtected bool
}

// CacheStats are counters of the resolution cache.
type CacheStats struct {
	Hits     uint64
	Misses   uint64
	Bypassed uint64
	Entries  int
}

// HitRate returns the hit rate as a percentage (0-100).
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

type resolutionCache struct {
	mu      sync.Mutex
	limit   int
	entries map[resolutionKey]*MethodDescriptor
	order   []resolutionKey
	stats   CacheStats
	logger  *slog.Logger
}

func newResolutionCache(limit int, logger *slog.Logger) *resolutionCache {
	return &resolutionCache{
		limit:   limit,
		entries: map[resolutionKey]*MethodDescriptor{},
		logger:  logger,
	}
}

func (c *resolutionCache) enabled() bool {
	return c != nil && c.limit > 0
}

// key builds the cache key of a call, or reports false when the call must
// not be cached.
func (c *resolutionCache) key(reg *Registry, set *OverloadSet, req *CallRequest) (resolutionKey, bool) {
	shape, ok := shapeOf(req)
	if !ok {
		c.mu.Lock()
		c.stats.Bypassed++
		c.mu.Unlock()
		return resolutionKey{}, false
	}
	return resolutionKey{
		registry:       reg.ID(),
		name:           set.Name,
		static:         set.Static,
		shape:          shape,
		hasBlock:       req.HasBlock,
		constReceiver:  req.ConstReceiver,
		allowProtected: req.AllowProtected,
	}, true
}

func (c *resolutionCache) lookup(key resolutionKey) *MethodDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.entries[key]
	if ok {
		c.stats.Hits++
		return m
	}
	c.stats.Misses++
	return nil
}

func (c *resolutionCache) store(key resolutionKey, m *MethodDescriptor) {
	if m == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return
	}
	if len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		if c.logger != nil {
			c.logger.Debug("evicted resolution cache entry", "method", oldest.name, "shape", oldest.shape)
		}
	}
	c.entries[key] = m
	c.order = append(c.order, key)
}

func (c *resolutionCache) snapshot() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Entries = len(c.entries)
	return stats
}

// shapeOf describes the argument types of req. Containers make the shape
// meaningless, so it reports false for them.
func shapeOf(req *CallRequest) (string, bool) {
	var sb strings.Builder
	for _, v := range req.Positional {
		if !writeShape(&sb, v) {
			return "", false
		}
		sb.WriteByte(',')
	}
	for _, name := range req.keywordNames() {
		sb.WriteString(name)
		sb.WriteByte('=')
		if !writeShape(&sb, req.Keyword[name]) {
			return "", false
		}
		sb.WriteByte(',')
	}
	return sb.String(), true
}

func writeShape(sb *strings.Builder, v Value) bool {
	switch v := v.(type) {
	case Seq, Map:
		return false
	case ObjectRef:
		if v.Const {
			sb.WriteString("c")
		}
		fmt.Fprintf(sb, "O%p", v.Class())
		return true
	case nil:
		sb.WriteString("-")
		return true
	}
	sb.WriteString(v.Kind().String())
	return true
}
