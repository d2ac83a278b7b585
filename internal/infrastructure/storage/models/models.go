// Package models holds the bun ORM row shapes backing the Postgres-backed
// storage adapter, and the ToDomain()/From*Model() conversions between them
// and internal/domain's pure types.
package models

import (
	"time"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/uptrace/bun"
)

// MemoryModel is the bun row shape for a memory. Field presence (Source,
// ResolvesBy) still drives domain.Memory.Kind() after the round trip; this
// model only adds bun struct tags and flattens []string/[]Violation into
// jsonb columns Postgres can index and query.
type MemoryModel struct {
	bun.BaseModel `bun:"table:memories,alias:mem"`

	ID string `bun:"id,pk"`

	Content   string `bun:"content"`
	Source    string `bun:"source"`
	SourceURL string `bun:"source_url"`

	DerivedFrom []string `bun:"derived_from,type:jsonb"`
	Assumes     []string `bun:"assumes,type:jsonb"`

	InvalidatesIf []string `bun:"invalidates_if,type:jsonb"`
	ConfirmsIf    []string `bun:"confirms_if,type:jsonb"`

	OutcomeCondition string     `bun:"outcome_condition"`
	ResolvesBy       *time.Time `bun:"resolves_by"`

	StartingConfidence   float64  `bun:"starting_confidence"`
	Confirmations        int      `bun:"confirmations"`
	TimesTested          int      `bun:"times_tested"`
	Contradictions       int      `bun:"contradictions"`
	Centrality           int      `bun:"centrality"`
	PropagatedConfidence *float64 `bun:"propagated_confidence"`

	State   string `bun:"state"`
	Outcome string `bun:"outcome"`

	ReplacedBy string `bun:"replaced_by"`

	Retracted  bool               `bun:"retracted"`
	Violations []domain.Violation `bun:"violations,type:jsonb"`

	ExposureCheckStatus      string     `bun:"exposure_check_status"`
	ExposureCheckCompletedAt *time.Time `bun:"exposure_check_completed_at"`
	CascadeBoosts            int        `bun:"cascade_boosts"`
	CascadeDamages           int        `bun:"cascade_damages"`
	LastCascadeAt            *time.Time `bun:"last_cascade_at"`
	Surprise                 *float64   `bun:"surprise"`
	Tags                     []string   `bun:"tags,type:jsonb"`

	CreatedAt time.Time `bun:"created_at"`
	UpdatedAt time.Time `bun:"updated_at"`
}

// ToDomain converts a stored row back into a domain.Memory.
func (m *MemoryModel) ToDomain() *domain.Memory {
	return &domain.Memory{
		ID:                       m.ID,
		Content:                  m.Content,
		Source:                   domain.Source(m.Source),
		SourceURL:                m.SourceURL,
		DerivedFrom:              m.DerivedFrom,
		Assumes:                  m.Assumes,
		InvalidatesIf:            m.InvalidatesIf,
		ConfirmsIf:               m.ConfirmsIf,
		OutcomeCondition:         m.OutcomeCondition,
		ResolvesBy:               m.ResolvesBy,
		StartingConfidence:       m.StartingConfidence,
		Confirmations:            m.Confirmations,
		TimesTested:              m.TimesTested,
		Contradictions:           m.Contradictions,
		Centrality:               m.Centrality,
		PropagatedConfidence:     m.PropagatedConfidence,
		State:                    domain.State(m.State),
		Outcome:                  domain.Outcome(m.Outcome),
		ReplacedBy:               m.ReplacedBy,
		Retracted:                m.Retracted,
		Violations:               m.Violations,
		ExposureCheckStatus:      domain.ExposureCheckStatus(m.ExposureCheckStatus),
		ExposureCheckCompletedAt: m.ExposureCheckCompletedAt,
		CascadeBoosts:            m.CascadeBoosts,
		CascadeDamages:           m.CascadeDamages,
		LastCascadeAt:            m.LastCascadeAt,
		Surprise:                 m.Surprise,
		Tags:                     m.Tags,
		CreatedAt:                m.CreatedAt,
		UpdatedAt:                m.UpdatedAt,
	}
}

// NewMemoryModel converts a domain.Memory into its storage row.
func NewMemoryModel(m *domain.Memory) *MemoryModel {
	return &MemoryModel{
		ID:                       m.ID,
		Content:                  m.Content,
		Source:                   string(m.Source),
		SourceURL:                m.SourceURL,
		DerivedFrom:              m.DerivedFrom,
		Assumes:                  m.Assumes,
		InvalidatesIf:            m.InvalidatesIf,
		ConfirmsIf:               m.ConfirmsIf,
		OutcomeCondition:         m.OutcomeCondition,
		ResolvesBy:               m.ResolvesBy,
		StartingConfidence:       m.StartingConfidence,
		Confirmations:            m.Confirmations,
		TimesTested:              m.TimesTested,
		Contradictions:           m.Contradictions,
		Centrality:               m.Centrality,
		PropagatedConfidence:     m.PropagatedConfidence,
		State:                    string(m.State),
		Outcome:                  string(m.Outcome),
		ReplacedBy:               m.ReplacedBy,
		Retracted:                m.Retracted,
		Violations:               m.Violations,
		ExposureCheckStatus:      string(m.ExposureCheckStatus),
		ExposureCheckCompletedAt: m.ExposureCheckCompletedAt,
		CascadeBoosts:            m.CascadeBoosts,
		CascadeDamages:           m.CascadeDamages,
		LastCascadeAt:            m.LastCascadeAt,
		Surprise:                 m.Surprise,
		Tags:                     m.Tags,
		CreatedAt:                m.CreatedAt,
		UpdatedAt:                m.UpdatedAt,
	}
}

// EdgeModel is the bun row shape for a graph edge. The (source, target,
// type) triple is unique; UpsertEdge merges strength into the existing row
// on conflict rather than inserting a duplicate.
type EdgeModel struct {
	bun.BaseModel `bun:"table:edges,alias:edg"`

	Source   string  `bun:"source,pk"`
	Target   string  `bun:"target,pk"`
	Type     string  `bun:"type,pk"`
	Strength float64 `bun:"strength"`

	CreatedAt time.Time `bun:"created_at"`
	UpdatedAt time.Time `bun:"updated_at"`
}

func (m *EdgeModel) ToDomain() *domain.Edge {
	return &domain.Edge{
		Source:    m.Source,
		Target:    m.Target,
		Type:      domain.EdgeType(m.Type),
		Strength:  m.Strength,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func NewEdgeModel(e *domain.Edge) *EdgeModel {
	return &EdgeModel{
		Source:    e.Source,
		Target:    e.Target,
		Type:      string(e.Type),
		Strength:  e.Strength,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// EventModel is the bun row shape for a memory event, append-only and
// claimed in FIFO order per session by the dispatcher.
type EventModel struct {
	bun.BaseModel `bun:"table:memory_events,alias:evt"`

	ID        string `bun:"id,pk"`
	SessionID string `bun:"session_id"`
	EventType string `bun:"event_type"`

	MemoryID    string `bun:"memory_id"`
	ViolatedBy  string `bun:"violated_by"`
	DamageLevel string `bun:"damage_level"`

	Context map[string]any `bun:"context,type:jsonb"`

	CreatedAt    time.Time  `bun:"created_at"`
	Dispatched   bool       `bun:"dispatched"`
	DispatchedAt *time.Time `bun:"dispatched_at"`
}

func (m *EventModel) ToDomain() *domain.MemoryEvent {
	return &domain.MemoryEvent{
		ID:           m.ID,
		SessionID:    m.SessionID,
		EventType:    domain.EventType(m.EventType),
		MemoryID:     m.MemoryID,
		ViolatedBy:   m.ViolatedBy,
		DamageLevel:  domain.DamageLevel(m.DamageLevel),
		Context:      m.Context,
		CreatedAt:    m.CreatedAt,
		Dispatched:   m.Dispatched,
		DispatchedAt: m.DispatchedAt,
	}
}

func NewEventModel(ev *domain.MemoryEvent) *EventModel {
	return &EventModel{
		ID:           ev.ID,
		SessionID:    ev.SessionID,
		EventType:    string(ev.EventType),
		MemoryID:     ev.MemoryID,
		ViolatedBy:   ev.ViolatedBy,
		DamageLevel:  string(ev.DamageLevel),
		Context:      ev.Context,
		CreatedAt:    ev.CreatedAt,
		Dispatched:   ev.Dispatched,
		DispatchedAt: ev.DispatchedAt,
	}
}

// VectorModel is the bun row shape backing the table-scan VectorIndex
// implementation: one table per logical index (content / invalidates_if /
// confirms_if), holding a raw float32 vector plus enough metadata to filter
// candidates before the exposure checker spends a judge call on them.
type VectorModel struct {
	bun.BaseModel `bun:"table:vectors,alias:vec"`

	ID       string         `bun:"id,pk"`
	Vector   []float32      `bun:"vector,type:jsonb"`
	Metadata map[string]any `bun:"metadata,type:jsonb"`
}
