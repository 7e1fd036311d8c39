// Package store is the persistence kernel (C3): GORM-backed tables for
// every entity in the memory substrate, one writer per project enforced by
// a per-project mutex, and a batched upsert primitive for spatial nodes,
// relations, and embedding blobs.
package store

import (
	"time"

	"github.com/cogmem/cogmem/types"
)

// Event is an immutable episodic record (C5). Never updated once written.
type Event struct {
	ID         string `gorm:"primaryKey;size:36"`
	ProjectID  string `gorm:"index:idx_events_project_ts,priority:1;size:128;not null"`
	SessionID  string `gorm:"size:128;index"`
	Timestamp  time.Time `gorm:"index:idx_events_project_ts,priority:2;not null"`
	EventType  string `gorm:"size:64;not null"`
	Content    string `gorm:"type:text;not null"`
	CWD        string `gorm:"size:1024"`
	Files      string `gorm:"type:text"` // JSON-encoded []string
	Tools      string `gorm:"type:text"` // JSON-encoded []string
	Embedding  []byte // length-prefixed IEEE-754 f32, NULL if not yet embedded
	WMSourceID string `gorm:"size:36"` // lineage pointer back to the consolidated WM item, if any
	CreatedAt  time.Time
}

func (Event) TableName() string { return "events" }

// EventRelation links two events in a temporal chain: precedes, causes,
// same_session.
type EventRelation struct {
	ID        string `gorm:"primaryKey;size:36"`
	ProjectID string `gorm:"size:128;not null;index"`
	FromID    string `gorm:"size:36;not null;index"`
	ToID      string `gorm:"size:36;not null;index"`
	Relation  string `gorm:"size:32;not null"`
	Strength  float64
	CreatedAt time.Time
}

func (EventRelation) TableName() string { return "event_relations" }

// SemanticRecord is a fact/concept record (C6). Mutated only to bump
// access_count, update usefulness_score, or be superseded by a merged
// record produced on contradiction (never rewritten in place).
type SemanticRecord struct {
	ID              string `gorm:"primaryKey;size:36"`
	ProjectID       string `gorm:"size:128;not null;index"`
	Content         string `gorm:"type:text;not null"`
	Embedding       []byte `gorm:"not null"`
	MemoryType      string `gorm:"size:64"`
	Tags            string `gorm:"type:text"` // JSON-encoded []string
	AccessCount     int64  `gorm:"not null;default:0"`
	UsefulnessScore float64 `gorm:"not null;default:0.5"`
	Active          bool   `gorm:"not null;default:true;index"`
	SupersededBy    string `gorm:"size:36"`
	WMSourceID      string `gorm:"size:36"` // lineage pointer back to the consolidated WM item
	CreatedAt       time.Time
}

func (SemanticRecord) TableName() string { return "semantic_records" }

// ProceduralTemplate is a reusable workflow template (C7). Frequency is
// monotonically non-decreasing.
type ProceduralTemplate struct {
	ID           string `gorm:"primaryKey;size:36"`
	ProjectID    string `gorm:"size:128;not null;index"`
	Name         string `gorm:"size:256;not null"`
	Category     string `gorm:"size:64"`
	TemplateBody string `gorm:"type:text;not null"`
	Frequency    int64  `gorm:"not null;default:0"`
	Metadata     string `gorm:"type:text"` // JSON-encoded map[string]any
	WMSourceID   string `gorm:"size:36"`
	CreatedAt    time.Time
}

func (ProceduralTemplate) TableName() string { return "procedural_templates" }

// ProspectiveTask is a future/reminder task (C8).
type ProspectiveTask struct {
	ID         string `gorm:"primaryKey;size:36"`
	ProjectID  string `gorm:"size:128;not null;index"`
	Content    string `gorm:"type:text;not null"`
	ActiveForm string `gorm:"size:512"`
	Priority   string `gorm:"size:8;not null;default:med"`
	Due        *time.Time
	Status     string `gorm:"size:32;not null;default:pending"`
	TagMatch   string `gorm:"type:text"` // JSON-encoded []string, activation condition
	WMSourceID string `gorm:"size:36"`
	CreatedAt  time.Time
}

func (ProspectiveTask) TableName() string { return "prospective_tasks" }

// WorkingMemoryItem is a capacity-bounded, time-decayed active-set item
// (C9). Invariant: for a given (project, component), row count never
// exceeds the component's capacity; eviction always happens before insert.
type WorkingMemoryItem struct {
	ID             string `gorm:"primaryKey;size:36"`
	ProjectID      string `gorm:"size:128;not null;index:idx_wm_project_component"`
	Content        string `gorm:"type:text;not null"`
	ContentType    string `gorm:"size:16;not null"` // verbal | spatial | episodic | goal
	Component      string `gorm:"size:24;not null;index:idx_wm_project_component"`
	ActivationLevel float64 `gorm:"not null;default:1"`
	CreatedAt      time.Time
	LastAccessed   time.Time `gorm:"not null"`
	DecayRate      float64   `gorm:"not null"`
	Importance     float64   `gorm:"not null;default:0.5"`
	Embedding      []byte
	Metadata       string `gorm:"type:text"` // JSON-encoded map[string]any
}

func (WorkingMemoryItem) TableName() string { return "working_memory_items" }

// Goal is a node in the central executive's goal hierarchy (C10).
type Goal struct {
	ID            string `gorm:"primaryKey;size:36"`
	ProjectID     string `gorm:"size:128;not null;index:idx_goals_status_priority,priority:1"`
	GoalText      string `gorm:"type:text;not null"`
	GoalType      string `gorm:"size:16;not null;default:primary"`
	ParentGoalID  string `gorm:"size:36;index"`
	Priority      int    `gorm:"not null;default:5;index:idx_goals_status_priority,priority:3"`
	Status        string `gorm:"size:16;not null;default:active;index:idx_goals_status_priority,priority:2"`
	Progress      float64 `gorm:"not null;default:0"`
	Deadline      *time.Time
	CreatedAt     time.Time
}

func (Goal) TableName() string { return "goals" }

// SpatialNode is one node of the path/symbol hierarchy (C4).
type SpatialNode struct {
	ProjectID  string `gorm:"primaryKey;size:128"`
	FullPath   string `gorm:"primaryKey;size:2048"`
	Name       string `gorm:"size:512;not null"`
	Depth      int    `gorm:"not null"`
	ParentPath string `gorm:"size:2048"`
	NodeType   string `gorm:"size:16;not null"`
	Language   string `gorm:"size:32"`
	SymbolKind string `gorm:"size:32"`
	CreatedAt  time.Time
}

func (SpatialNode) TableName() string { return "spatial_nodes" }

// SpatialRelation is an edge between two spatial nodes (C4).
type SpatialRelation struct {
	ProjectID    string `gorm:"primaryKey;size:128"`
	FromPath     string `gorm:"primaryKey;size:2048"`
	ToPath       string `gorm:"primaryKey;size:2048"`
	RelationType string `gorm:"primaryKey;size:16"`
	Strength     float64 `gorm:"not null"`
	CreatedAt    time.Time
}

func (SpatialRelation) TableName() string { return "spatial_relations" }

// InhibitionRecord is a decaying suppression weight on a memory (C13).
type InhibitionRecord struct {
	ID                 string `gorm:"primaryKey;size:36"`
	ProjectID          string `gorm:"size:128;not null;index:idx_inhibition_memory"`
	MemoryID           string `gorm:"size:36;not null;index:idx_inhibition_memory"`
	MemoryLayer        string `gorm:"size:16;not null;index:idx_inhibition_memory"`
	InhibitionStrength float64 `gorm:"not null"`
	InhibitionType     string  `gorm:"size:16;not null"`
	Reason             string  `gorm:"size:512"`
	InhibitedAt        time.Time `gorm:"not null"`
	ExpiresAt          *time.Time
}

func (InhibitionRecord) TableName() string { return "inhibition_records" }

// AttentionFocus is the project's current focus state (C10). At most one
// row per project has EndedAt == nil and FocusType == "primary".
type AttentionFocus struct {
	ID               string `gorm:"primaryKey;size:36"`
	ProjectID        string `gorm:"size:128;not null;index"`
	FocusTarget      string `gorm:"type:text;not null"`
	FocusType        string `gorm:"size:16;not null"`
	Weight           float64 `gorm:"not null"`
	StartedAt        time.Time `gorm:"not null"`
	EndedAt          *time.Time
	TransitionType   string `gorm:"size:32"`
	PreviousFocusID  string `gorm:"size:36"`
}

func (AttentionFocus) TableName() string { return "attention_focus" }

// ConsolidationRoute is a training-log row the router appends on every
// consolidation decision, heuristic or ML, so the classifier always has a
// growing pool to retrain from.
type ConsolidationRoute struct {
	ID          string `gorm:"primaryKey;size:36"`
	ProjectID   string `gorm:"size:128;not null;index"`
	WMID        string `gorm:"size:36;not null"`
	TargetLayer string `gorm:"size:16;not null"`
	Confidence  float64 `gorm:"not null"`
	Features    string  `gorm:"type:text;not null"` // JSON-encoded [11]float64
	WasCorrect  *bool
	CorrectLayer string `gorm:"size:16"`
	CreatedAt   time.Time
}

func (ConsolidationRoute) TableName() string { return "consolidation_routes" }

// AllModels lists every table for AutoMigrate/migration generation.
func AllModels() []any {
	return []any{
		&Event{}, &EventRelation{},
		&SemanticRecord{}, &ProceduralTemplate{}, &ProspectiveTask{},
		&WorkingMemoryItem{}, &Goal{},
		&SpatialNode{}, &SpatialRelation{},
		&InhibitionRecord{}, &AttentionFocus{}, &ConsolidationRoute{},
	}
}

// MemoryLayerTable maps a types.MemoryLayer to its backing table name, used
// by the inhibition registry and retrieval engine to build layer-scoped
// queries without a type switch at every call site.
func MemoryLayerTable(layer types.MemoryLayer) string {
	switch layer {
	case types.LayerSemantic:
		return "semantic_records"
	case types.LayerEpisodic:
		return "events"
	case types.LayerProcedural:
		return "procedural_templates"
	case types.LayerProspective:
		return "prospective_tasks"
	default:
		return ""
	}
}
