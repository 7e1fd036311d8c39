// Package retrieval is the two-stage retrieval engine (C16):
// query_spatial_semantic combines a coarse spatial/time-window fetch
// with a fine semantic+spatial scoring pass, penalized by inhibition.
package retrieval

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cogmem/cogmem/cache"
	"github.com/cogmem/cogmem/embedder"
	"github.com/cogmem/cogmem/episodic"
	"github.com/cogmem/cogmem/inhibition"
	"github.com/cogmem/cogmem/prospective"
	"github.com/cogmem/cogmem/spatial"
	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
)

// DefaultWindowDays is the fallback lookback window when no spatial
// context narrows the candidate set (spec.md §4.13 stage 1).
const DefaultWindowDays = 365

// CoarseCandidateLimit bounds the spatial-path coarse fetch regardless of
// neighborhood size; the time-window path (no spatial context) is not
// bounded by it.
const CoarseCandidateLimit = 1000

// SpatialDistanceCap is the denominator in the spatial score's linear
// falloff: max(0, 1 - distance/10).
const SpatialDistanceCap = 10.0

// Engine runs query_spatial_semantic over a project's episodic store.
type Engine struct {
	episodic   *episodic.Store
	spatial    *spatial.Index
	inhibition *inhibition.Registry
	embedder   embedder.Embedder
	cache      *cache.Manager // nil disables caching
	logger     *zap.Logger

	semanticWeight float64
	embedGroup     singleflight.Group
}

// Config tunes the engine's scoring weight.
type Config struct {
	// CombinedSemanticWeight is the semantic share of the combined score;
	// (1 - this) is the spatial share. Default 0.7 per spec.md §6.
	CombinedSemanticWeight float64
}

// New constructs a retrieval Engine. embedder may be nil, in which case
// every query falls back to the Jaccard keyword path. cacheManager may be
// nil, in which case neither query embeddings nor result sets are cached.
func New(episodicStore *episodic.Store, spatialIndex *spatial.Index, inhibitionRegistry *inhibition.Registry, emb embedder.Embedder, cacheManager *cache.Manager, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	weight := cfg.CombinedSemanticWeight
	if weight == 0 {
		weight = 0.7
	}
	return &Engine{
		episodic:       episodicStore,
		spatial:        spatialIndex,
		inhibition:     inhibitionRegistry,
		embedder:       emb,
		cache:          cacheManager,
		logger:         logger.With(zap.String("component", "retrieval")),
		semanticWeight: weight,
	}
}

// Result is one scored event returned from a query.
type Result struct {
	Event    store.Event
	Semantic float64
	Spatial  float64
	Combined float64
}

// Query runs query_spatial_semantic: coarse fetch, fine scoring,
// inhibition penalty, top-k sort. Result sets are cached per project
// (spec.md §5) keyed on the query's own parameters; a hit skips the
// coarse fetch and scoring pass entirely.
func (e *Engine) Query(ctx context.Context, projectID, queryText, spatialContext string, maxSpatialDepth, k int) ([]Result, error) {
	if maxSpatialDepth <= 0 {
		maxSpatialDepth = 2
	}
	if k <= 0 {
		k = 5
	}

	cacheKey := resultCacheKey(queryText, spatialContext, maxSpatialDepth, k)
	if e.cache != nil {
		if cached, ok := e.cache.GetRetrieval(projectID, cacheKey); ok {
			return cached.([]Result), nil
		}
	}

	candidates, err := e.coarse(ctx, projectID, spatialContext, maxSpatialDepth)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	queryVec, queryTokens, usedEmbedding := e.resolveQuery(ctx, projectID, queryText)

	results := make([]Result, 0, len(candidates))
	for _, ev := range candidates {
		semScore := e.semanticScore(ev, queryVec, queryTokens, usedEmbedding)
		spatialScore := e.spatialScore(ev, spatialContext)
		combined := e.semanticWeight*semScore + (1-e.semanticWeight)*spatialScore

		if e.inhibition != nil {
			strength, err := e.inhibition.EffectiveStrength(ctx, projectID, ev.ID, types.LayerEpisodic)
			if err != nil {
				e.logger.Warn("inhibition lookup failed, treating as uninhibited", zap.Error(err))
			} else {
				combined -= strength
			}
		}
		if combined <= 0 {
			continue
		}
		results = append(results, Result{Event: ev, Semantic: semScore, Spatial: spatialScore, Combined: combined})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Combined > results[j].Combined })
	if len(results) > k {
		results = results[:k]
	}
	if e.cache != nil {
		e.cache.PutRetrieval(projectID, cacheKey, results)
	}
	return results, nil
}

// resultCacheKey derives a cache key from a query's parameters. Inhibition
// strength and activation both drift between calls with the same
// parameters, so the cached entry is short-lived by design (see
// cache.Manager.GetRetrieval); this key only needs to disambiguate
// distinct queries, not version them.
func resultCacheKey(queryText, spatialContext string, maxSpatialDepth, k int) string {
	return queryText + "\x00" + spatialContext + "\x00" + strconv.Itoa(maxSpatialDepth) + "\x00" + strconv.Itoa(k)
}

// coarse collects the bounded candidate set: events near spatialContext
// within maxSpatialDepth hops, or events in the default window if no
// spatial context was given.
func (e *Engine) coarse(ctx context.Context, projectID, spatialContext string, maxSpatialDepth int) ([]store.Event, error) {
	if spatialContext != "" && e.spatial != nil {
		neighbors, err := e.spatial.Neighbors(ctx, projectID, spatialContext, maxSpatialDepth)
		if err != nil {
			return nil, err
		}
		paths := make(map[string]bool, len(neighbors)+1)
		paths[spatialContext] = true
		for _, p := range neighbors {
			paths[p] = true
		}
		return e.eventsInPaths(ctx, projectID, paths)
	}

	if e.episodic == nil {
		return nil, nil
	}
	return e.episodic.GetEventsByDate(ctx, projectID, types.TimeRange{
		Start: time.Now().AddDate(0, 0, -DefaultWindowDays),
	})
}

// eventsInPaths fetches events whose CWD falls in paths, bounded by
// CoarseCandidateLimit, via the episodic store's default window (the
// spec leaves the time bound on a spatial query unspecified, so it
// reuses the same default window as the time-only path).
func (e *Engine) eventsInPaths(ctx context.Context, projectID string, paths map[string]bool) ([]store.Event, error) {
	if e.episodic == nil {
		return nil, nil
	}
	events, err := e.episodic.GetEventsByDate(ctx, projectID, types.TimeRange{
		Start: time.Now().AddDate(0, 0, -DefaultWindowDays),
	})
	if err != nil {
		return nil, err
	}
	out := make([]store.Event, 0, len(events))
	for _, ev := range events {
		if paths[ev.CWD] {
			out = append(out, ev)
		}
		if len(out) >= CoarseCandidateLimit {
			break
		}
	}
	return out, nil
}

// resolveQuery embeds queryText, checking the per-project embedding cache
// before deduplicating concurrent identical queries across goroutines via
// singleflight. If embedding fails (or no embedder is configured), it
// tokenizes the query for the Jaccard fallback instead.
func (e *Engine) resolveQuery(ctx context.Context, projectID, queryText string) (vec types.Vector, tokens map[string]bool, usedEmbedding bool) {
	if e.embedder != nil {
		if e.cache != nil {
			if v, ok := e.cache.GetEmbedding(ctx, projectID, queryText); ok {
				return v, nil, true
			}
		}
		v, err, _ := e.embedGroup.Do(queryText, func() (any, error) {
			return e.embedder.Embed(ctx, queryText)
		})
		if err == nil {
			vec := v.(types.Vector)
			if e.cache != nil {
				e.cache.PutEmbedding(ctx, projectID, queryText, vec)
			}
			return vec, nil, true
		}
		e.logger.Warn("query embedding unavailable, falling back to keyword match", zap.Error(err))
	}
	return nil, tokenize(queryText), false
}

func (e *Engine) semanticScore(ev store.Event, queryVec types.Vector, queryTokens map[string]bool, usedEmbedding bool) float64 {
	if usedEmbedding {
		if len(ev.Embedding) == 0 {
			return 0
		}
		evVec, err := types.DecodeVector(ev.Embedding)
		if err != nil {
			return 0
		}
		cos := types.CosineSimilarity(queryVec, evVec)
		return types.NormalizeSimilarity(cos)
	}
	return jaccard(queryTokens, tokenize(ev.Content))
}

func (e *Engine) spatialScore(ev store.Event, spatialContext string) float64 {
	if spatialContext == "" || ev.CWD == "" {
		return 0
	}
	d := spatial.Distance(spatialContext, ev.CWD)
	score := 1 - float64(d)/SpatialDistanceCap
	if score < 0 {
		return 0
	}
	return score
}

func tokenize(text string) map[string]bool {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// jaccard is the keyword-path fallback similarity when no query
// embedding is available: |intersection| / |union|.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// PendingProspectiveTasks surfaces prospective tasks whose activation
// condition is satisfied now, for callers that want a retrieval call to
// also surface due reminders alongside episodic results. Evaluated here
// rather than inside the prospective store itself since whether a
// condition is "satisfied" is a query-time question (spec.md §4.5's
// ActivationCondition).
func PendingProspectiveTasks(ctx context.Context, tasks *prospective.Store, projectID string, now time.Time, contextTags []string) ([]store.ProspectiveTask, error) {
	pending, err := tasks.Pending(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]store.ProspectiveTask, 0, len(pending))
	for _, t := range pending {
		cond, err := prospective.DecodeCondition(t)
		if err != nil {
			continue
		}
		if cond.Satisfied(now, contextTags) {
			out = append(out, t)
		}
	}
	return out, nil
}
