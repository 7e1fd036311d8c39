// Package workingmemory implements the three working-memory buffers (C9):
// the phonological loop, the visuospatial sketchpad, and the episodic
// buffer. All three share a schema and a decay law; they differ in
// capacity, eviction policy, and search semantics.
package workingmemory

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
)

// Buffer component names, matching store.WorkingMemoryItem.Component.
const (
	Phonological = "phonological"
	Visuospatial = "visuospatial"
	Episodic     = "episodic"
)

// Capacity returns the item-count capacity for a buffer component.
func Capacity(component string) int {
	switch component {
	case Phonological, Visuospatial:
		return 7
	case Episodic:
		return 4
	default:
		return 7
	}
}

const (
	// DefaultDecayRate is λ's base rate before the importance discount,
	// per spec.md §4.6's decay formula (1/s).
	DefaultDecayRate = 0.1
	// DecayFloor is the current-activation threshold below which an item
	// is an eviction candidate regardless of buffer capacity.
	DecayFloor = 0.1
)

// CurrentActivation computes A(Δt) = A0 * exp(-λ*Δt), λ = decay_rate *
// (1 - 0.5*importance), evaluated at `now`.
func CurrentActivation(item store.WorkingMemoryItem, now time.Time) float64 {
	dt := now.Sub(item.LastAccessed).Seconds()
	if dt < 0 {
		dt = 0
	}
	lambda := item.DecayRate * (1 - 0.5*item.Importance)
	return item.ActivationLevel * math.Exp(-lambda*dt)
}

// Manager operates on the working-memory buffers for a project.
type Manager struct {
	kernel *store.Kernel
	logger *zap.Logger
}

// New constructs a working-memory Manager.
func New(kernel *store.Kernel, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{kernel: kernel, logger: logger.With(zap.String("component", "workingmemory"))}
}

// metadataJSON marshals a metadata map, defaulting to "{}" on nil.
func metadataJSON(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", types.NewError(types.ErrInternalError, "marshal wm metadata").WithCause(err)
	}
	return string(b), nil
}

// AddItem inserts a new item into a buffer, evicting the least-active
// item first if the buffer is already at capacity. The evicted item (if
// any) is returned so the caller can route it through consolidation
// (C14) — that routing is the central executive's responsibility, not
// this package's.
func (m *Manager) AddItem(ctx context.Context, projectID, component, content, contentType string, embedding types.Vector, importance float64, metadata map[string]any) (*store.WorkingMemoryItem, *store.WorkingMemoryItem, error) {
	metaJSON, err := metadataJSON(metadata)
	if err != nil {
		return nil, nil, err
	}

	var evicted *store.WorkingMemoryItem
	now := time.Now()
	item := &store.WorkingMemoryItem{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		Content:         content,
		ContentType:     contentType,
		Component:       component,
		ActivationLevel: 1.0,
		CreatedAt:       now,
		LastAccessed:    now,
		DecayRate:       DefaultDecayRate,
		Importance:      importance,
		Metadata:        metaJSON,
	}
	if embedding != nil {
		item.Embedding = types.EncodeVector(embedding)
	}
	if err := m.kernel.ValidateEmbedding(item.Embedding); err != nil {
		return nil, nil, err
	}

	err = m.kernel.WithProjectTx(ctx, projectID, func(tx *gorm.DB) error {
		var items []store.WorkingMemoryItem
		if err := tx.Where("project_id = ? AND component = ?", projectID, component).Find(&items).Error; err != nil {
			return err
		}
		if len(items) >= Capacity(component) {
			victim := selectEvictionVictim(component, items, now)
			if err := tx.Delete(&store.WorkingMemoryItem{}, "project_id = ? AND id = ?", projectID, victim.ID).Error; err != nil {
				return err
			}
			evicted = &victim
		}
		return tx.Create(item).Error
	})
	if err != nil {
		return nil, nil, types.NewError(types.ErrStoreError, "add working memory item").WithCause(err)
	}
	return item, evicted, nil
}

// selectEvictionVictim picks the item to remove before an insert at
// capacity: phonological and episodic evict by lowest current
// activation, visuospatial evicts by LRU over last_accessed (spec.md
// §4.6).
func selectEvictionVictim(component string, items []store.WorkingMemoryItem, now time.Time) store.WorkingMemoryItem {
	best := items[0]
	if component == Visuospatial {
		for _, it := range items[1:] {
			if it.LastAccessed.Before(best.LastAccessed) {
				best = it
			}
		}
		return best
	}
	bestActivation := CurrentActivation(best, now)
	for _, it := range items[1:] {
		a := CurrentActivation(it, now)
		if a < bestActivation {
			best, bestActivation = it, a
		}
	}
	return best
}

// Rehearse resets an item's activation to 1.0 and bumps last_accessed,
// the state machine's active -> active transition.
func (m *Manager) Rehearse(ctx context.Context, projectID, id string) error {
	err := m.kernel.DB().WithContext(ctx).Model(&store.WorkingMemoryItem{}).
		Where("project_id = ? AND id = ?", projectID, id).
		Updates(map[string]any{"activation_level": 1.0, "last_accessed": time.Now()}).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "rehearse working memory item").WithCause(err)
	}
	return nil
}

// ScoredItem pairs a working-memory item with its search score.
type ScoredItem struct {
	Item  store.WorkingMemoryItem
	Score float64
}

// SearchPhonological blends embedding similarity with current activation:
// score = 0.7*cos_sim + 0.3*current_activation (spec.md §4.6).
func (m *Manager) SearchPhonological(ctx context.Context, projectID string, query types.Vector, limit int) ([]ScoredItem, error) {
	var items []store.WorkingMemoryItem
	err := m.kernel.DB().WithContext(ctx).
		Where("project_id = ? AND component = ?", projectID, Phonological).
		Find(&items).Error
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "query phonological loop").WithCause(err)
	}
	now := time.Now()
	scored := make([]ScoredItem, 0, len(items))
	for _, it := range items {
		sim := 0.0
		if len(it.Embedding) > 0 {
			if v, err := types.DecodeVector(it.Embedding); err == nil {
				sim = types.CosineSimilarity(query, v)
			}
		}
		score := 0.7*sim + 0.3*CurrentActivation(it, now)
		scored = append(scored, ScoredItem{Item: it, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

type fileMetadata struct {
	FilePath string `json:"file_path"`
}

// FindByDirectory returns visuospatial items whose file_path metadata
// falls under dirPrefix.
func (m *Manager) FindByDirectory(ctx context.Context, projectID, dirPrefix string) ([]store.WorkingMemoryItem, error) {
	var items []store.WorkingMemoryItem
	err := m.kernel.DB().WithContext(ctx).
		Where("project_id = ? AND component = ?", projectID, Visuospatial).
		Find(&items).Error
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "query visuospatial sketchpad").WithCause(err)
	}
	var matched []store.WorkingMemoryItem
	for _, it := range items {
		var meta fileMetadata
		if json.Unmarshal([]byte(it.Metadata), &meta) == nil && hasPrefix(meta.FilePath, dirPrefix) {
			matched = append(matched, it)
		}
	}
	return matched, nil
}

func hasPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

// GetRecentlyAccessedFiles returns up to limit visuospatial items, most
// recently accessed first.
func (m *Manager) GetRecentlyAccessedFiles(ctx context.Context, projectID string, limit int) ([]store.WorkingMemoryItem, error) {
	var items []store.WorkingMemoryItem
	q := m.kernel.DB().WithContext(ctx).
		Where("project_id = ? AND component = ?", projectID, Visuospatial).
		Order("last_accessed DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, types.NewError(types.ErrStoreError, "query recently accessed files").WithCause(err)
	}
	return items, nil
}

// GetFileHierarchy groups visuospatial items by directory, derived from
// their file_path metadata.
func (m *Manager) GetFileHierarchy(ctx context.Context, projectID string) (map[string][]string, error) {
	items, err := m.FindByDirectory(ctx, projectID, "")
	if err != nil {
		return nil, err
	}
	hierarchy := map[string][]string{}
	for _, it := range items {
		var meta fileMetadata
		if json.Unmarshal([]byte(it.Metadata), &meta) != nil || meta.FilePath == "" {
			continue
		}
		dir := directoryOf(meta.FilePath)
		hierarchy[dir] = append(hierarchy[dir], meta.FilePath)
	}
	return hierarchy, nil
}

func directoryOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}

type bindingMetadata struct {
	PhonologicalID string `json:"phonological_id,omitempty"`
	VisuospatialID string `json:"visuospatial_id,omitempty"`
	Description    string `json:"description"`
}

// BindItems integrates a phonological and/or visuospatial item into a
// composite episodic-buffer item recording both source ids (spec.md
// §4.6's bind_items).
func (m *Manager) BindItems(ctx context.Context, projectID string, phonologicalID, visuospatialID *string, description string) (*store.WorkingMemoryItem, *store.WorkingMemoryItem, error) {
	bm := bindingMetadata{Description: description}
	if phonologicalID != nil {
		bm.PhonologicalID = *phonologicalID
	}
	if visuospatialID != nil {
		bm.VisuospatialID = *visuospatialID
	}
	b, err := json.Marshal(bm)
	if err != nil {
		return nil, nil, types.NewError(types.ErrInternalError, "marshal binding metadata").WithCause(err)
	}
	return m.AddItem(ctx, projectID, Episodic, description, "episodic", nil, 0.5, jsonToMap(b))
}

func jsonToMap(b []byte) map[string]any {
	var m map[string]any
	if json.Unmarshal(b, &m) != nil {
		return map[string]any{}
	}
	return m
}

type chunkMetadata struct {
	ItemIDs []string `json:"item_ids"`
}

// CreateChunk packages up to 5 item ids as a single episodic-buffer
// slot, raising the buffer's effective capacity (spec.md §4.6).
func (m *Manager) CreateChunk(ctx context.Context, projectID string, itemIDs []string, description string) (*store.WorkingMemoryItem, *store.WorkingMemoryItem, error) {
	if len(itemIDs) > 5 {
		return nil, nil, types.NewError(types.ErrInvalidRequest, "chunk accepts at most 5 items")
	}
	cm := chunkMetadata{ItemIDs: itemIDs}
	b, err := json.Marshal(cm)
	if err != nil {
		return nil, nil, types.NewError(types.ErrInternalError, "marshal chunk metadata").WithCause(err)
	}
	return m.AddItem(ctx, projectID, Episodic, description, "episodic", nil, 0.5, jsonToMap(b))
}

// EvictDecayed scans a project's working-memory items and returns those
// whose current activation has fallen below DecayFloor, for the caller to
// route through consolidation. It does not delete: the decay<floor ->
// consolidated transition is only complete once consolidation.Router
// inserts the item into its target layer and removes the WM row in one
// transaction, so an observer never sees a memory in neither place.
func (m *Manager) EvictDecayed(ctx context.Context, projectID string) ([]store.WorkingMemoryItem, error) {
	var items []store.WorkingMemoryItem
	if err := m.kernel.DB().WithContext(ctx).Where("project_id = ?", projectID).Find(&items).Error; err != nil {
		return nil, types.NewError(types.ErrStoreError, "query working memory for decay sweep").WithCause(err)
	}
	now := time.Now()
	var decayed []store.WorkingMemoryItem
	for _, it := range items {
		if CurrentActivation(it, now) < DecayFloor {
			decayed = append(decayed, it)
		}
	}
	return decayed, nil
}

// Count returns the total item count across all buffers for a project,
// used by the central executive's capacity check (C10).
func (m *Manager) Count(ctx context.Context, projectID string) (int64, error) {
	var count int64
	err := m.kernel.DB().WithContext(ctx).Model(&store.WorkingMemoryItem{}).
		Where("project_id = ?", projectID).Count(&count).Error
	if err != nil {
		return 0, types.NewError(types.ErrStoreError, "count working memory items").WithCause(err)
	}
	return count, nil
}

// LeastActive returns the count least-active items across all buffers
// for a project, used by trigger_consolidation (C10).
func (m *Manager) LeastActive(ctx context.Context, projectID string, count int) ([]store.WorkingMemoryItem, error) {
	var items []store.WorkingMemoryItem
	if err := m.kernel.DB().WithContext(ctx).Where("project_id = ?", projectID).Find(&items).Error; err != nil {
		return nil, types.NewError(types.ErrStoreError, "query working memory for eviction").WithCause(err)
	}
	now := time.Now()
	sort.SliceStable(items, func(i, j int) bool {
		return CurrentActivation(items[i], now) < CurrentActivation(items[j], now)
	})
	if count < len(items) {
		items = items[:count]
	}
	return items, nil
}
