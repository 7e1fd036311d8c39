// Package inhibition is the inhibition registry (C13): decaying
// suppression weights on memories, applied by the retrieval engine to
// push recently-incorrect or deliberately-suppressed results down.
package inhibition

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
)

// Inhibition types.
const (
	TypeProactive  = "proactive"
	TypeRetroactive = "retroactive"
	TypeSelective  = "selective"
)

// DefaultHalfLife is H, the half-life in seconds used by
// effective_strength's decay curve (spec.md §4.10).
const DefaultHalfLife = 1800.0

// DefaultInhibitedThreshold is the effective-strength threshold
// is_inhibited checks against by default.
const DefaultInhibitedThreshold = 0.3

// DefaultMinStrength is the floor decay_inhibitions purges below.
const DefaultMinStrength = 0.01

// Registry manages inhibition records for a project.
type Registry struct {
	kernel   *store.Kernel
	logger   *zap.Logger
	halfLife float64
}

// New constructs a Registry with the default half-life.
func New(kernel *store.Kernel, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{kernel: kernel, logger: logger.With(zap.String("component", "inhibition")), halfLife: DefaultHalfLife}
}

// WithHalfLife overrides the registry's decay half-life in seconds.
func (r *Registry) WithHalfLife(seconds float64) *Registry {
	r.halfLife = seconds
	return r
}

// Inhibit inserts a new inhibition record. Per spec.md's resolution of
// the source's in-place-vs-insert ambiguity (§ Open Questions), multiple
// inhibitions on the same memory are always summed, decaying copies:
// this never updates an existing row.
func (r *Registry) Inhibit(ctx context.Context, projectID string, memoryID string, layer types.MemoryLayer, strength float64, inhibitionType, reason string, duration *time.Duration) (*store.InhibitionRecord, error) {
	now := time.Now()
	rec := &store.InhibitionRecord{
		ID:                 uuid.NewString(),
		ProjectID:          projectID,
		MemoryID:           memoryID,
		MemoryLayer:        string(layer),
		InhibitionStrength: strength,
		InhibitionType:     inhibitionType,
		Reason:             reason,
		InhibitedAt:        now,
	}
	if duration != nil {
		expires := now.Add(*duration)
		rec.ExpiresAt = &expires
	}
	if err := r.kernel.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// activeRecords returns all non-expired inhibition records for a memory.
func (r *Registry) activeRecords(ctx context.Context, projectID, memoryID string, layer types.MemoryLayer, now time.Time) ([]store.InhibitionRecord, error) {
	var recs []store.InhibitionRecord
	err := r.kernel.DB().WithContext(ctx).
		Where("project_id = ? AND memory_id = ? AND memory_layer = ?", projectID, memoryID, string(layer)).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Find(&recs).Error
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "query inhibition records").WithCause(err)
	}
	return recs, nil
}

// EffectiveStrength computes Σ base_k · 2^(−Δt_k/H) over active records,
// capped at 1.0 (spec.md §4.10).
func (r *Registry) EffectiveStrength(ctx context.Context, projectID, memoryID string, layer types.MemoryLayer) (float64, error) {
	now := time.Now()
	recs, err := r.activeRecords(ctx, projectID, memoryID, layer, now)
	if err != nil {
		return 0, err
	}
	return effectiveStrength(recs, now, r.halfLife), nil
}

func effectiveStrength(recs []store.InhibitionRecord, now time.Time, halfLife float64) float64 {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	sum := 0.0
	for _, rec := range recs {
		dt := now.Sub(rec.InhibitedAt).Seconds()
		if dt < 0 {
			dt = 0
		}
		sum += rec.InhibitionStrength * math.Pow(2, -dt/halfLife)
	}
	if sum > 1.0 {
		sum = 1.0
	}
	return sum
}

// IsInhibited reports whether a memory's effective strength crosses
// threshold (default 0.3).
func (r *Registry) IsInhibited(ctx context.Context, projectID, memoryID string, layer types.MemoryLayer, threshold float64) (bool, error) {
	if threshold <= 0 {
		threshold = DefaultInhibitedThreshold
	}
	strength, err := r.EffectiveStrength(ctx, projectID, memoryID, layer)
	if err != nil {
		return false, err
	}
	return strength >= threshold, nil
}

// DecayInhibitions purges records whose effective strength has fallen
// below minStrength (default 0.01), and any already expired. Meant to
// run periodically, not on every retrieval call.
func (r *Registry) DecayInhibitions(ctx context.Context, projectID string, minStrength float64) (int64, error) {
	if minStrength <= 0 {
		minStrength = DefaultMinStrength
	}
	now := time.Now()
	var all []store.InhibitionRecord
	if err := r.kernel.DB().WithContext(ctx).Where("project_id = ?", projectID).Find(&all).Error; err != nil {
		return 0, types.NewError(types.ErrStoreError, "query inhibition records for decay sweep").WithCause(err)
	}

	var purge []string
	for _, rec := range all {
		if rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
			purge = append(purge, rec.ID)
			continue
		}
		dt := now.Sub(rec.InhibitedAt).Seconds()
		if dt < 0 {
			dt = 0
		}
		strength := rec.InhibitionStrength * math.Pow(2, -dt/r.halfLife)
		if strength < minStrength {
			purge = append(purge, rec.ID)
		}
	}
	if len(purge) == 0 {
		return 0, nil
	}
	err := r.kernel.DB().WithContext(ctx).
		Where("project_id = ? AND id IN ?", projectID, purge).
		Delete(&store.InhibitionRecord{}).Error
	if err != nil {
		return 0, types.NewError(types.ErrStoreError, "purge decayed inhibition records").WithCause(err)
	}
	return int64(len(purge)), nil
}
