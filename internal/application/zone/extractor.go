// Package zone implements the reasoning-zone extractor (component H):
// around a seed memory, build the largest locally consistent cluster by
// BFS with safety and contradiction gating, check it for signed-cycle
// balance, and score it.
package zone

import (
	"context"

	"github.com/beliefgraph/core/internal/domain"
)

// Params bounds a single extraction.
type Params struct {
	MinStrength float64
	MaxDepth    int
	MaxSize     int
	Query       string   // optional semantic seed/expansion query
	QueryVector []float32
	Lambda      float64 // λ: cut⁻ penalty weight
	RhoPenalty  float64 // ρ_penalty: loss⁺ penalty weight
}

// DefaultParams returns the named defaults, clamped to their stated caps.
func DefaultParams() Params {
	return Params{MinStrength: 0.3, MaxDepth: 3, MaxSize: 30, Lambda: 0.2, RhoPenalty: 0.1}
}

// BoundaryReason explains why a node was excluded from, or sits at the
// edge of, the zone.
type BoundaryReason struct {
	NodeID string
	Reason string // "retracted" | "violated" | "resolved_incorrect" | "overwhelmingly_violated" | "has_violations" | "contradiction"
}

// Zone is the result of one extraction.
type Zone struct {
	SeedID         string
	MemberIDs      []string
	SemanticIDs    []string // members added via semantic expansion, not graph-promoted
	Boundary       []BoundaryReason
	InternalEdges  []*domain.Edge
	CutNegative    []*domain.Edge // violated_by edges with exactly one endpoint inside
	LossPositive   []*domain.Edge // support edges with exactly one endpoint inside
	UnsafeReasons  []BoundaryReason
	Balanced       bool
	ConflictEdge   *domain.Edge
	Score          float64
}

var supportTypes = []domain.EdgeType{domain.EdgeDerivedFrom, domain.EdgeConfirmedBy}
var contradictionTypes = []domain.EdgeType{domain.EdgeViolatedBy}

// Extractor runs zone extraction against a storage backend.
type Extractor struct {
	Store domain.Storage
}

func NewExtractor(store domain.Storage) *Extractor {
	return &Extractor{Store: store}
}

// isUnsafe reports the safety-gate predicate and, if unsafe, why.
func isUnsafe(m *domain.Memory) (bool, string) {
	if m.Retracted {
		return true, "retracted"
	}
	if m.State == domain.StateViolated {
		return true, "violated"
	}
	if m.State == domain.StateResolved && m.Outcome == domain.OutcomeIncorrect {
		return true, "resolved_incorrect"
	}
	if m.OverwhelminglyViolated() {
		return true, "overwhelmingly_violated"
	}
	return false, ""
}

// Extract builds a zone around seedID.
func (x *Extractor) Extract(ctx context.Context, seedID string, p Params) (*Zone, error) {
	if p.MaxDepth > 5 {
		p.MaxDepth = 5
	}
	if p.MaxSize > 100 {
		p.MaxSize = 100
	}

	seed, err := x.Store.GetMemory(ctx, seedID)
	if err != nil {
		return nil, err
	}

	z := &Zone{SeedID: seedID}
	if unsafe, reason := isUnsafe(seed); unsafe {
		z.UnsafeReasons = append(z.UnsafeReasons, BoundaryReason{NodeID: seedID, Reason: reason})
	}
	if len(seed.Violations) > 0 {
		z.UnsafeReasons = append(z.UnsafeReasons, BoundaryReason{NodeID: seedID, Reason: "has_violations"})
	}

	members := map[string]*domain.Memory{seedID: seed}
	frontier := []string{seedID}

	for depth := 0; depth < p.MaxDepth && len(members) < p.MaxSize; depth++ {
		edges, err := x.Store.ListEdgesIncident(ctx, frontier, supportTypes, p.MinStrength)
		if err != nil {
			return nil, err
		}

		candidateIDs := map[string]bool{}
		for _, e := range edges {
			for _, id := range []string{e.Source, e.Target} {
				if _, already := members[id]; !already {
					candidateIDs[id] = true
				}
			}
		}
		if len(candidateIDs) == 0 {
			break
		}

		ids := make([]string, 0, len(candidateIDs))
		for id := range candidateIDs {
			ids = append(ids, id)
		}
		candidates, err := x.Store.ListByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}

		var nextFrontier []string
		for _, c := range candidates {
			if len(members) >= p.MaxSize {
				break
			}
			if unsafe, reason := isUnsafe(c); unsafe {
				z.Boundary = append(z.Boundary, BoundaryReason{NodeID: c.ID, Reason: reason})
				continue
			}
			if x.hasContradictionToZone(ctx, c.ID, members) {
				z.Boundary = append(z.Boundary, BoundaryReason{NodeID: c.ID, Reason: "contradiction"})
				continue
			}
			members[c.ID] = c
			nextFrontier = append(nextFrontier, c.ID)
		}
		frontier = nextFrontier
	}

	if p.Query != "" && len(members) < 5 && len(p.QueryVector) > 0 {
		if err := x.expandSemantically(ctx, p, members, z); err != nil {
			return nil, err
		}
	}

	memberIDs := make([]string, 0, len(members))
	for id := range members {
		if id == seedID {
			continue
		}
		memberIDs = append(memberIDs, id)
	}
	z.MemberIDs = append([]string{seedID}, memberIDs...)

	allIDs := z.MemberIDs
	allEdges, err := x.Store.ListEdgesIncident(ctx, allIDs, append(append([]domain.EdgeType{}, supportTypes...), contradictionTypes...), 0)
	if err != nil {
		return nil, err
	}

	memberSet := make(map[string]bool, len(allIDs))
	for _, id := range allIDs {
		memberSet[id] = true
	}

	for _, e := range allEdges {
		inSource, inTarget := memberSet[e.Source], memberSet[e.Target]
		switch {
		case inSource && inTarget:
			z.InternalEdges = append(z.InternalEdges, e)
		case e.Type.IsContradiction() && (inSource || inTarget):
			z.CutNegative = append(z.CutNegative, e)
		case e.Type.IsSupport() && (inSource || inTarget):
			z.LossPositive = append(z.LossPositive, e)
		}
	}

	coloring := Balance(allIDs, z.InternalEdges)
	z.Balanced = coloring.Balanced
	z.ConflictEdge = coloring.ConflictEdge

	z.Score = x.score(allIDs, members, z, p)

	return z, nil
}

func (x *Extractor) hasContradictionToZone(ctx context.Context, candidateID string, members map[string]*domain.Memory) bool {
	edges, err := x.Store.ListEdgesIncident(ctx, []string{candidateID}, contradictionTypes, 0)
	if err != nil {
		return false
	}
	for _, e := range edges {
		other := e.Target
		if e.Target == candidateID {
			other = e.Source
		}
		if _, ok := members[other]; ok {
			return true
		}
	}
	return false
}

func (x *Extractor) expandSemantically(ctx context.Context, p Params, members map[string]*domain.Memory, z *Zone) error {
	matches, err := x.Store.ContentIndex().Query(ctx, p.QueryVector, 25, nil, 0)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, already := members[m.ID]; !already {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	candidates, err := x.Store.ListByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if len(members) >= p.MaxSize {
			break
		}
		if unsafe, reason := isUnsafe(c); unsafe {
			z.Boundary = append(z.Boundary, BoundaryReason{NodeID: c.ID, Reason: reason})
			continue
		}
		if x.hasContradictionToZone(ctx, c.ID, members) {
			z.Boundary = append(z.Boundary, BoundaryReason{NodeID: c.ID, Reason: "contradiction"})
			continue
		}
		members[c.ID] = c
		z.SemanticIDs = append(z.SemanticIDs, c.ID)
	}
	return nil
}

func (x *Extractor) score(allIDs []string, members map[string]*domain.Memory, z *Zone, p Params) float64 {
	if len(allIDs) == 0 {
		return 0
	}
	sum := 0.0
	for _, id := range allIDs {
		m := members[id]
		if m == nil {
			continue
		}
		sum += m.EffectiveConfidence()
	}
	mean := sum / float64(len(allIDs))
	size := float64(len(allIDs))
	raw := mean - p.Lambda*float64(len(z.CutNegative))/size - p.RhoPenalty*float64(len(z.LossPositive))/size
	return clamp01(raw)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
