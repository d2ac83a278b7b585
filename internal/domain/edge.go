package domain

import "time"

// EdgeType classifies the relationship a graph edge encodes.
type EdgeType string

const (
	EdgeDerivedFrom EdgeType = "derived_from"
	EdgeConfirmedBy EdgeType = "confirmed_by"
	EdgeViolatedBy  EdgeType = "violated_by"
	EdgeSupersedes  EdgeType = "supersedes"
)

// IsSupport reports whether the edge type reinforces the target's
// confidence rather than challenging it.
func (t EdgeType) IsSupport() bool {
	return t == EdgeDerivedFrom || t == EdgeConfirmedBy
}

// IsContradiction reports whether the edge type is evidence against the
// target — the zone extractor's signed-cycle (Harary balance) check depends on this split.
func (t EdgeType) IsContradiction() bool {
	return t == EdgeViolatedBy
}

// Edge is a directed, typed, weighted connection between two memories.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Strength float64 `json:"strength"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MergeStrength folds delta into an existing edge strength, clamped to
// [0,1] — the upsert-merge semantics storage adapters must apply when the
// same (source, target, type) edge is written twice.
func MergeStrength(old, delta float64) float64 {
	merged := old + delta
	if merged < 0 {
		return 0
	}
	if merged > 1 {
		return 1
	}
	return merged
}
