// Package pipeline is the integrated pipeline (C15): one orchestration
// pass over the five stages spec.md §4.12 lists. Each stage is isolated —
// a failing stage is recorded and the pipeline continues with a partial
// result, never propagating the error to the caller.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cogmem/cogmem/config"
	"github.com/cogmem/cogmem/consolidation"
	"github.com/cogmem/cogmem/episodic"
	"github.com/cogmem/cogmem/executive"
	"github.com/cogmem/cogmem/internal/channel"
	"github.com/cogmem/cogmem/internal/ctxkeys"
	"github.com/cogmem/cogmem/internal/metrics"
	"github.com/cogmem/cogmem/procedural"
	"github.com/cogmem/cogmem/prospective"
	"github.com/cogmem/cogmem/saliency"
	"github.com/cogmem/cogmem/semantic"
	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/surprise"
	"github.com/cogmem/cogmem/types"
	"github.com/cogmem/cogmem/workingmemory"
)

const instrumentationName = "github.com/cogmem/cogmem/pipeline"

// Stores bundles the per-layer stores and components a pipeline run reads
// from and writes to. Any field may be nil; a stage whose store is absent
// does nothing and reports StageOK with an empty detail rather than failing.
type Stores struct {
	Episodic    *episodic.Store
	Semantic    *semantic.Store
	Procedural  *procedural.Store
	Prospective *prospective.Store
	WM          *workingmemory.Manager
	Executive   *executive.Executive
	Router      *consolidation.Router
}

// Pipeline runs one integrated pass per invocation over a project's
// memory state.
type Pipeline struct {
	stores  Stores
	metrics *metrics.Collector
	tracer  trace.Tracer
	logger  *zap.Logger
	cfg     config.MemoryConfig
}

// New constructs a Pipeline. collector may be nil to disable metrics.
func New(stores Stores, collector *metrics.Collector, cfg config.MemoryConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		stores:  stores,
		metrics: collector,
		tracer:  otel.Tracer(instrumentationName),
		logger:  logger.With(zap.String("component", "pipeline")),
		cfg:     cfg,
	}
}

// StageStatus is the outcome of one stage within a Run.
type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// StageResult is the structured, isolated outcome of one pipeline stage.
type StageResult struct {
	Name     string
	Status   StageStatus
	Err      error
	Duration time.Duration
	Detail   any
}

// Result is the outcome of one Run: every stage's isolated result, never
// a single propagated error.
type Result struct {
	RequestID string
	Stages    []StageResult
}

// UnprocessedCountDetail is stage 1's detail payload.
type UnprocessedCountDetail struct {
	UnembeddedEvents int64
}

// SurpriseDetail is stage 2's detail payload.
type SurpriseDetail struct {
	Steps      []surprise.Step
	Boundaries []string
}

// ConsolidationDetail is stage 3's detail payload.
type ConsolidationDetail struct {
	Attempted int
	Routes    []*store.ConsolidationRoute
	Failures  int
}

// SaliencyDetail is stage 4's detail payload.
type SaliencyDetail struct {
	Scored []ScoredCandidate
}

// ScoredCandidate is one LTM record scored by stage 4, carried into
// stage 5's auto-focus call.
type ScoredCandidate struct {
	MemoryID   string
	Components saliency.Components
}

// FocusDetail is stage 5's detail payload.
type FocusDetail struct {
	Focused []store.AttentionFocus
}

// Run executes all five stages for one project against the given LTM
// layer (used by stages 4-5 to pick which store to score). goalEmbedding
// may be nil if the project has no active goal.
func (p *Pipeline) Run(ctx context.Context, projectID string, layer types.MemoryLayer, goalEmbedding types.Vector) Result {
	requestID := uuid.NewString()
	ctx = ctxkeys.WithRequestID(ctx, requestID)
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("project_id", projectID),
			attribute.String("layer", string(layer)),
			attribute.String("request_id", requestID),
		),
	)
	defer span.End()

	result := Result{RequestID: requestID}

	result.Stages = append(result.Stages, p.runStage(ctx, "count_unprocessed", func(ctx context.Context) (any, error) {
		return p.countUnprocessed(ctx, projectID)
	}))

	result.Stages = append(result.Stages, p.runStage(ctx, "surprise_scan", func(ctx context.Context) (any, error) {
		return p.surpriseScan(ctx, projectID)
	}))

	result.Stages = append(result.Stages, p.runStage(ctx, "consolidate", func(ctx context.Context) (any, error) {
		return p.consolidate(ctx, projectID)
	}))

	var saliencyDetail *SaliencyDetail
	result.Stages = append(result.Stages, p.runStage(ctx, "score_saliency", func(ctx context.Context) (any, error) {
		d, err := p.scoreSaliency(ctx, projectID, layer, goalEmbedding)
		if err == nil {
			saliencyDetail = &d
		}
		return d, err
	}))

	result.Stages = append(result.Stages, p.runStage(ctx, "auto_focus", func(ctx context.Context) (any, error) {
		return p.autoFocus(ctx, projectID, layer, saliencyDetail)
	}))

	for _, s := range result.Stages {
		if s.Status == StageFailed {
			span.SetStatus(codes.Error, s.Name+" failed")
		}
	}
	return result
}

// runStage times and isolates one stage: a panic or error becomes a
// StageFailed result, never a propagated error or crash.
func (p *Pipeline) runStage(ctx context.Context, name string, fn func(context.Context) (any, error)) (res StageResult) {
	ctx, span := p.tracer.Start(ctx, "pipeline.stage."+name)
	ctx = ctxkeys.WithStage(ctx, name)
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			res.Status = StageFailed
			res.Err = types.NewError(types.ErrInternalError, "pipeline stage panicked").WithCause(errFromRecover(r))
			p.logger.Error("pipeline stage panicked", zap.String("stage", name), zap.Any("recover", r))
		}
		if p.metrics != nil {
			outcome := "ok"
			if res.Status == StageFailed {
				outcome = "failed"
			} else if res.Status == StageSkipped {
				outcome = "skipped"
			}
			p.metrics.RecordPipelineStage(name, outcome, res.Duration)
		}
		if res.Err != nil {
			span.RecordError(res.Err)
		}
		span.End()
	}()

	res.Name = name
	detail, err := fn(ctx)
	if err != nil {
		if types.GetErrorCode(err) == types.ErrCancelled {
			res.Status = StageFailed
			res.Err = err
			return res
		}
		res.Status = StageFailed
		res.Err = err
		p.logger.Warn("pipeline stage failed", zap.String("stage", name), zap.Error(err))
		return res
	}
	res.Status = StageOK
	res.Detail = detail
	return res
}

func errFromRecover(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return types.NewError(types.ErrInternalError, "non-error panic value")
}

// countUnprocessed counts episodic events that have not yet been
// embedded (empty Embedding), the backlog the embedder worker still
// needs to process.
func (p *Pipeline) countUnprocessed(ctx context.Context, projectID string) (UnprocessedCountDetail, error) {
	if p.stores.Episodic == nil {
		return UnprocessedCountDetail{}, nil
	}
	count, err := p.stores.Episodic.CountUnembedded(ctx, projectID)
	if err != nil {
		return UnprocessedCountDetail{}, err
	}
	return UnprocessedCountDetail{UnembeddedEvents: count}, nil
}

// surpriseScan computes pairwise surprise over up to PipelineEventLimit
// most-recent events and records segment boundaries.
func (p *Pipeline) surpriseScan(ctx context.Context, projectID string) (SurpriseDetail, error) {
	if p.stores.Episodic == nil {
		return SurpriseDetail{}, nil
	}
	limit := p.cfg.PipelineEventLimit
	if limit <= 0 {
		limit = 100
	}
	events, err := p.stores.Episodic.GetRecentEvents(ctx, projectID, 24*365, limit)
	if err != nil {
		return SurpriseDetail{}, err
	}
	// GetRecentEvents returns most-recent-first; surprise is a
	// chronological notion.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	ids := make([]string, len(events))
	vecs := make([]types.Vector, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
		if len(ev.Embedding) == 0 {
			continue
		}
		v, err := types.DecodeVector(ev.Embedding)
		if err != nil {
			continue
		}
		vecs[i] = v
	}

	threshold := p.cfg.SurpriseThreshold
	if threshold == 0 {
		threshold = surprise.DefaultThreshold
	}
	steps := surprise.PerStep(ids, vecs, threshold)
	boundaries := surprise.Boundaries(steps)
	if p.metrics != nil {
		for range boundaries {
			p.metrics.RecordSurpriseBoundary(projectID)
		}
	}
	return SurpriseDetail{Steps: steps, Boundaries: boundaries}, nil
}

// consolidationJob pairs a candidate with its index so workers can write
// results back into a preallocated, order-stable slice. stop marks a
// poison pill: the index is meaningless and the worker receiving it exits.
type consolidationJob struct {
	index int
	item  store.WorkingMemoryItem
	stop  bool
}

// consolidate routes every working-memory item whose activation has
// decayed below the eviction floor through the consolidation router.
// Per-item failures are counted, not aborting the remaining items.
//
// Candidates are fed through a tunable buffered channel rather than one
// goroutine per item: a sweep can evict thousands of items at once, and
// an unbounded fan-out would open that many transactions against the
// kernel's per-project mutex simultaneously. A fixed worker pool sized
// by cfg.ConsolidationFanout drains the channel instead. The queue is
// built per run with room for every candidate; queue.Tune is called once
// after the sends, and no tuned size carries over to the next run.
func (p *Pipeline) consolidate(ctx context.Context, projectID string) (ConsolidationDetail, error) {
	if p.stores.WM == nil || p.stores.Router == nil {
		return ConsolidationDetail{}, nil
	}
	candidates, err := p.stores.WM.EvictDecayed(ctx, projectID)
	if err != nil {
		return ConsolidationDetail{}, err
	}

	detail := ConsolidationDetail{Attempted: len(candidates)}
	if len(candidates) == 0 {
		return detail, nil
	}

	workers := p.cfg.ConsolidationFanout
	if workers <= 0 {
		workers = 4
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	queueCfg := channel.DefaultTunableConfig()
	queueCfg.InitialSize = len(candidates) + workers
	if queueCfg.InitialSize < queueCfg.MinSize {
		queueCfg.InitialSize = queueCfg.MinSize
	}
	queue := channel.NewTunableChannel[consolidationJob](queueCfg)

	routes := make([]*store.ConsolidationRoute, len(candidates))
	failures := make([]bool, len(candidates))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				job, err := queue.Receive(ctx)
				if err != nil || job.stop {
					return
				}
				route, err := p.stores.Router.ConsolidateItem(ctx, projectID, job.item)
				if err != nil {
					failures[job.index] = true
					p.logger.Warn("consolidation failed for item",
						zap.String("wm_id", job.item.ID), zap.Error(err))
					continue
				}
				routes[job.index] = route
				if p.metrics != nil {
					p.metrics.RecordConsolidation(route.TargetLayer, "pipeline", 0)
				}
			}
		}()
	}

	for i, item := range candidates {
		if err := queue.Send(ctx, consolidationJob{index: i, item: item}); err != nil {
			failures[i] = true
			p.logger.Warn("consolidation queue send failed", zap.String("wm_id", item.ID), zap.Error(err))
		}
	}
	for w := 0; w < workers; w++ {
		_ = queue.Send(ctx, consolidationJob{stop: true})
	}
	queue.Tune()
	wg.Wait()

	for i, route := range routes {
		if route != nil {
			detail.Routes = append(detail.Routes, route)
		}
		if failures[i] {
			detail.Failures++
		}
	}
	return detail, nil
}

// scoreSaliency scores up to 20 LTM records in layer, as selected by
// recentCandidates.
func (p *Pipeline) scoreSaliency(ctx context.Context, projectID string, layer types.MemoryLayer, goalEmbedding types.Vector) (SaliencyDetail, error) {
	candidates, err := p.recentCandidates(ctx, projectID, layer, 20)
	if err != nil {
		return SaliencyDetail{}, err
	}

	var maxAccess int64
	for _, c := range candidates {
		if c.AccessCount > maxAccess {
			maxAccess = c.AccessCount
		}
	}

	now := time.Now()
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		comp := saliency.Compute(saliency.Inputs{
			AccessCount:      c.AccessCount,
			MaxAccessInLayer: maxAccess,
			CreatedAt:        c.CreatedAt,
			Now:              now,
			MemoryEmbedding:  c.Embedding,
			GoalEmbedding:    goalEmbedding,
			UsefulnessScore:  c.UsefulnessScore,
			Weights: saliency.Weights{
				Frequency: p.cfg.SaliencyWeightFrequency,
				Recency:   p.cfg.SaliencyWeightRecency,
				Relevance: p.cfg.SaliencyWeightRelevance,
				Surprise:  p.cfg.SaliencyWeightSurprise,
			},
		})
		scored = append(scored, ScoredCandidate{MemoryID: c.ID, Components: comp})
		if p.metrics != nil {
			p.metrics.RecordSaliency(string(saliency.ClassifyBand(comp.Total)))
		}
	}
	return SaliencyDetail{Scored: scored}, nil
}

// autoFocus focuses the top 5 scored candidates via the central
// executive.
func (p *Pipeline) autoFocus(ctx context.Context, projectID string, layer types.MemoryLayer, saliencyDetail *SaliencyDetail) (FocusDetail, error) {
	if p.stores.Executive == nil || saliencyDetail == nil || len(saliencyDetail.Scored) == 0 {
		return FocusDetail{}, nil
	}

	scores := make(map[string]float64, len(saliencyDetail.Scored))
	ids := make([]string, 0, len(saliencyDetail.Scored))
	for _, s := range saliencyDetail.Scored {
		scores[s.MemoryID] = s.Components.Total
		ids = append(ids, s.MemoryID)
	}

	focused, err := p.stores.Executive.AutoFocusTopMemories(ctx, projectID, layer, ids, 5,
		func(memoryID string) (float64, error) { return scores[memoryID], nil })
	if err != nil {
		return FocusDetail{}, err
	}
	return FocusDetail{Focused: focused}, nil
}

// candidate is the common shape saliency scoring needs, built from
// whichever layer's store owns it. Layers without a given subfactor
// (e.g. procedural has no embedding) leave that field zero; saliency.Compute
// already treats a missing subfactor as "unknown" rather than an error.
type candidate struct {
	ID              string
	CreatedAt       time.Time
	Embedding       types.Vector
	AccessCount     int64
	UsefulnessScore *float64
}

// recentCandidates fetches up to limit LTM records from the store backing
// layer: the most recent events for episodic, pending tasks in due order
// for prospective, the most frequent templates for procedural, and active
// semantic records with no ordering applied.
func (p *Pipeline) recentCandidates(ctx context.Context, projectID string, layer types.MemoryLayer, limit int) ([]candidate, error) {
	switch layer {
	case types.LayerSemantic:
		if p.stores.Semantic == nil {
			return nil, nil
		}
		records, err := p.stores.Semantic.ActiveRecords(ctx, projectID, limit)
		if err != nil {
			return nil, err
		}
		out := make([]candidate, 0, len(records))
		for _, r := range records {
			c := candidate{ID: r.ID, CreatedAt: r.CreatedAt, AccessCount: r.AccessCount}
			if len(r.Embedding) > 0 {
				if v, err := types.DecodeVector(r.Embedding); err == nil {
					c.Embedding = v
				}
			}
			score := r.UsefulnessScore
			c.UsefulnessScore = &score
			out = append(out, c)
		}
		return out, nil

	case types.LayerEpisodic:
		if p.stores.Episodic == nil {
			return nil, nil
		}
		events, err := p.stores.Episodic.GetRecentEvents(ctx, projectID, 24*365, limit)
		if err != nil {
			return nil, err
		}
		out := make([]candidate, 0, len(events))
		for _, e := range events {
			c := candidate{ID: e.ID, CreatedAt: e.CreatedAt}
			if len(e.Embedding) > 0 {
				if v, err := types.DecodeVector(e.Embedding); err == nil {
					c.Embedding = v
				}
			}
			out = append(out, c)
		}
		return out, nil

	case types.LayerProspective:
		if p.stores.Prospective == nil {
			return nil, nil
		}
		tasks, err := p.stores.Prospective.Pending(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if len(tasks) > limit {
			tasks = tasks[:limit]
		}
		out := make([]candidate, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, candidate{ID: t.ID, CreatedAt: t.CreatedAt})
		}
		return out, nil

	default: // types.LayerProcedural
		if p.stores.Procedural == nil {
			return nil, nil
		}
		templates, err := p.stores.Procedural.ByCategory(ctx, projectID, "", limit)
		if err != nil {
			return nil, err
		}
		out := make([]candidate, 0, len(templates))
		for _, t := range templates {
			out = append(out, candidate{ID: t.ID, CreatedAt: t.CreatedAt, AccessCount: t.Frequency})
		}
		return out, nil
	}
}
