// Package cache is the per-project cache tier (spec.md §5: "Caches
// (search result cache, embedding cache) are per-project LRUs"). Each
// project gets its own in-process groupcache LRU pair; an optional
// Redis-backed distributed tier (internal/cache.Manager) sits behind it
// when memory.distributed_cache_enabled is set, so a cache miss on one
// worker can still be served from another's write.
package cache

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"
	"go.uber.org/zap"

	distcache "github.com/cogmem/cogmem/internal/cache"
	"github.com/cogmem/cogmem/internal/metrics"
	"github.com/cogmem/cogmem/types"
)

// projectCache is one project's embedding and retrieval-result LRUs.
// groupcache's lru.Cache is not safe for concurrent use on its own, so
// every access goes through mu.
type projectCache struct {
	mu        sync.Mutex
	embedding *lru.Cache
	retrieval *lru.Cache
}

func newProjectCache(maxEntries int) *projectCache {
	return &projectCache{
		embedding: &lru.Cache{MaxEntries: maxEntries},
		retrieval: &lru.Cache{MaxEntries: maxEntries},
	}
}

func (p *projectCache) getEmbedding(key string) (types.Vector, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.embedding.Get(key)
	if !ok {
		return nil, false
	}
	return v.(types.Vector), true
}

func (p *projectCache) putEmbedding(key string, vec types.Vector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.embedding.Add(key, vec)
}

func (p *projectCache) getRetrieval(key string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retrieval.Get(key)
}

func (p *projectCache) putRetrieval(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrieval.Add(key, value)
}

// Manager owns one projectCache per project and an optional distributed
// tier shared across all of them.
type Manager struct {
	mu         sync.RWMutex
	projects   map[string]*projectCache
	maxEntries int

	distributed *distcache.Manager // nil if DistributedCacheEnabled is false
	metrics     *metrics.Collector // nil disables instrumentation
	logger      *zap.Logger
}

// NewManager constructs a Manager. distributed and collector may both be
// nil.
func NewManager(maxEntriesPerProject int, distributed *distcache.Manager, collector *metrics.Collector, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxEntriesPerProject <= 0 {
		maxEntriesPerProject = 1000
	}
	return &Manager{
		projects:    make(map[string]*projectCache),
		maxEntries:  maxEntriesPerProject,
		distributed: distributed,
		metrics:     collector,
		logger:      logger.With(zap.String("component", "cache")),
	}
}

func (m *Manager) project(projectID string) *projectCache {
	m.mu.RLock()
	pc, ok := m.projects[projectID]
	m.mu.RUnlock()
	if ok {
		return pc
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if pc, ok := m.projects[projectID]; ok {
		return pc
	}
	pc = newProjectCache(m.maxEntries)
	m.projects[projectID] = pc
	return pc
}

func embeddingDistKey(projectID, text string) string {
	return "cogmem:emb:" + projectID + ":" + text
}

// GetEmbedding returns a cached embedding for text, checking the
// in-process LRU first and the distributed tier second.
func (m *Manager) GetEmbedding(ctx context.Context, projectID, text string) (types.Vector, bool) {
	if v, ok := m.project(projectID).getEmbedding(text); ok {
		m.recordHit("embedding")
		return v, true
	}
	if m.distributed != nil {
		var v types.Vector
		if err := m.distributed.GetJSON(ctx, embeddingDistKey(projectID, text), &v); err == nil {
			m.project(projectID).putEmbedding(text, v)
			m.recordHit("embedding")
			return v, true
		}
	}
	m.recordMiss("embedding")
	return nil, false
}

// PutEmbedding populates both tiers for text.
func (m *Manager) PutEmbedding(ctx context.Context, projectID, text string, vec types.Vector) {
	m.project(projectID).putEmbedding(text, vec)
	if m.distributed != nil {
		if err := m.distributed.SetJSON(ctx, embeddingDistKey(projectID, text), vec, 0); err != nil {
			m.logger.Warn("distributed embedding cache write failed", zap.Error(err))
		}
	}
}

// GetRetrieval returns a cached retrieval result set for key (typically a
// hash of query text + spatial context + k), in-process only: retrieval
// results are large and change with every inhibition decay tick, so they
// are not worth the round trip to the distributed tier.
func (m *Manager) GetRetrieval(projectID, key string) (any, bool) {
	v, ok := m.project(projectID).getRetrieval(key)
	if ok {
		m.recordHit("retrieval")
	} else {
		m.recordMiss("retrieval")
	}
	return v, ok
}

// PutRetrieval caches a retrieval result set for key.
func (m *Manager) PutRetrieval(projectID, key string, value any) {
	m.project(projectID).putRetrieval(key, value)
}

func (m *Manager) recordHit(cacheType string) {
	if m.metrics != nil {
		m.metrics.RecordCacheHit(cacheType)
	}
}

func (m *Manager) recordMiss(cacheType string) {
	if m.metrics != nil {
		m.metrics.RecordCacheMiss(cacheType)
	}
}
