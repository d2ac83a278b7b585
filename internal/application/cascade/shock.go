// Package cascade implements the local shock propagator (component F): a
// bounded, two-hop BFS confidence shock radiating from a single violated or
// confirmed memory, as opposed to the periodic whole-graph pass in
// propagation.
package cascade

import (
	"context"
	"math"
	"time"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/google/uuid"
)

// Tunables configures the shock propagator's constants.
type Tunables struct {
	Rho             float64 // ρ: shock injection scale
	Alpha           float64 // α: damping weight toward propagated value
	Eta             float64 // η: contradiction penalty weight
	MinEdgeStrength float64 // floor for support/contradiction edges considered
	MaxIterations   int
	MaxTimesTested  int // MAX in the structural-integration weight w
}

// Result reports what the propagator changed.
type Result struct {
	AffectedIDs []string
	MaxDrop     float64
}

var supportTypes = []domain.EdgeType{domain.EdgeDerivedFrom, domain.EdgeConfirmedBy}
var contradictionTypes = []domain.EdgeType{domain.EdgeViolatedBy}

// Propagator runs the local shock cascade against a storage backend.
type Propagator struct {
	Store domain.MemoryStore
	T     Tunables
}

// NewPropagator builds a propagator with the given tunables, defaulting
// MaxIterations to 3 and MaxTimesTested to 1 if left unset.
func NewPropagator(store domain.MemoryStore, t Tunables) *Propagator {
	if t.MaxIterations <= 0 {
		t.MaxIterations = 3
	}
	if t.MaxTimesTested <= 0 {
		t.MaxTimesTested = 1
	}
	return &Propagator{Store: store, T: t}
}

// shockMagnitude returns the injected shock scalar for a damage level.
func shockMagnitude(damage domain.DamageLevel) float64 {
	if damage == domain.DamageCore {
		return 1.0
	}
	return 0.4
}

// Run propagates a shock from seedID outward, two hops over support edges,
// and returns the set of nodes whose propagated_confidence changed.
func (p *Propagator) Run(ctx context.Context, seedID string, damage domain.DamageLevel) (*Result, error) {
	neighborhood, err := p.collectNeighborhood(ctx, seedID)
	if err != nil {
		return nil, err
	}
	if len(neighborhood) == 0 {
		return &Result{}, nil
	}

	ids := make([]string, 0, len(neighborhood)+1)
	ids = append(ids, seedID)
	for id := range neighborhood {
		ids = append(ids, id)
	}

	members, err := p.Store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Memory, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	if err := p.injectShock(ctx, seedID, neighborhood, damage, byID); err != nil {
		return nil, err
	}

	support, err := p.Store.ListEdgesIncident(ctx, ids, supportTypes, p.T.MinEdgeStrength)
	if err != nil {
		return nil, err
	}
	contradiction, err := p.Store.ListEdgesIncident(ctx, ids, contradictionTypes, p.T.MinEdgeStrength)
	if err != nil {
		return nil, err
	}

	current := make(map[string]float64, len(byID))
	for id, m := range byID {
		current[id] = p.localScalar(m)
	}

	updateable := make(map[string]bool, len(neighborhood))
	for id := range neighborhood {
		if m := byID[id]; m != nil && !m.IsObservation() && id != seedID {
			updateable[id] = true
		}
	}

	maxDrop := 0.0
	var affected []string
	changed := map[string]float64{}

	for iter := 0; iter < p.T.MaxIterations; iter++ {
		next := make(map[string]float64, len(current))
		for id, v := range current {
			next[id] = v
		}
		for id := range updateable {
			supportMean := weightedMean(id, support, current)
			contradictionMean := weightedMean(id, contradiction, current)
			updated := (1-p.T.Alpha)*current[id] + p.T.Alpha*(supportMean-p.T.Eta*contradictionMean)
			next[id] = clamp01(updated)
		}
		for id := range updateable {
			drop := current[id] - next[id]
			if drop > maxDrop {
				maxDrop = drop
			}
		}
		current = next
	}

	now := time.Now()
	for id := range updateable {
		m := byID[id]
		final := current[id]
		prior := m.EffectiveConfidence()
		if math.Abs(final-prior) > 1e-6 {
			v := final
			m.PropagatedConfidence = &v
			m.CascadeDamages++
			m.LastCascadeAt = &now
			if err := p.Store.PutMemory(ctx, m); err != nil {
				return nil, err
			}
			if err := p.appendCascadeEvent(ctx, m.ID, seedID, "damage", string(damage), final, now); err != nil {
				return nil, err
			}
			changed[id] = final
			affected = append(affected, id)
		}
	}

	return &Result{AffectedIDs: affected, MaxDrop: maxDrop}, nil
}

// RunConfirmation applies a positive local shock to seedID's direct
// derived_from descendants after it resolves correct: each descendant's
// effective confidence is boosted by a ρ-scaled share of the remaining
// headroom to 1, so propagated_confidence is always non-decreasing — the
// positive counterpart to Run's violation-triggered shock.
func (p *Propagator) RunConfirmation(ctx context.Context, seedID string) (*Result, error) {
	edges, err := p.Store.ListEdgesIncident(ctx, []string{seedID}, []domain.EdgeType{domain.EdgeDerivedFrom}, p.T.MinEdgeStrength)
	if err != nil {
		return nil, err
	}

	var descendantIDs []string
	for _, e := range edges {
		if e.Source == seedID {
			descendantIDs = append(descendantIDs, e.Target)
		}
	}
	if len(descendantIDs) == 0 {
		return &Result{}, nil
	}

	members, err := p.Store.ListByIDs(ctx, descendantIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var affected []string
	for _, m := range members {
		if m.IsObservation() {
			continue
		}
		prior := m.EffectiveConfidence()
		boosted := clamp01(prior + p.T.Rho*(1-prior))
		if boosted <= prior {
			continue
		}
		v := boosted
		m.PropagatedConfidence = &v
		m.CascadeBoosts++
		m.LastCascadeAt = &now
		if err := p.Store.PutMemory(ctx, m); err != nil {
			return nil, err
		}
		if err := p.appendCascadeEvent(ctx, m.ID, seedID, "boost", "", boosted, now); err != nil {
			return nil, err
		}
		affected = append(affected, m.ID)
	}

	return &Result{AffectedIDs: affected}, nil
}

// appendCascadeEvent queues a cascade event recording the effect just
// applied, the dispatcher's record of what apply_cascade should (re)commit.
func (p *Propagator) appendCascadeEvent(ctx context.Context, memoryID, seedID, action, damage string, confidence float64, at time.Time) error {
	return p.Store.AppendEvent(ctx, &domain.MemoryEvent{
		ID:          uuid.NewString(),
		EventType:   domain.EventCascade,
		MemoryID:    memoryID,
		ViolatedBy:  seedID,
		DamageLevel: domain.DamageLevel(damage),
		Context: map[string]any{
			"action":     action,
			"seed_id":    seedID,
			"confidence": confidence,
		},
		CreatedAt: at,
	})
}

// collectNeighborhood BFS's support edges from seedID up to 2 hops,
// returning the set of reached node ids (excluding the seed).
func (p *Propagator) collectNeighborhood(ctx context.Context, seedID string) (map[string]bool, error) {
	visited := map[string]bool{seedID: true}
	frontier := []string{seedID}

	for hop := 0; hop < 2 && len(frontier) > 0; hop++ {
		edges, err := p.Store.ListEdgesIncident(ctx, frontier, supportTypes, p.T.MinEdgeStrength)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, e := range edges {
			for _, id := range []string{e.Source, e.Target} {
				if !visited[id] {
					visited[id] = true
					next = append(next, id)
				}
			}
		}
		frontier = next
	}

	delete(visited, seedID)
	return visited, nil
}

// injectShock upserts a violated_by edge from seedID to each direct support
// neighbour, proportional to that neighbour's edge strength share.
func (p *Propagator) injectShock(ctx context.Context, seedID string, neighborhood map[string]bool, damage domain.DamageLevel, byID map[string]*domain.Memory) error {
	directEdges, err := p.Store.ListEdgesIncident(ctx, []string{seedID}, supportTypes, p.T.MinEdgeStrength)
	if err != nil {
		return err
	}

	type directNeighbor struct {
		id       string
		strength float64
	}
	var direct []directNeighbor
	total := 0.0
	for _, e := range directEdges {
		other := e.Target
		if e.Target == seedID {
			other = e.Source
		}
		if other == seedID {
			continue
		}
		direct = append(direct, directNeighbor{id: other, strength: e.Strength})
		total += e.Strength
	}
	if total <= 0 {
		return nil
	}

	shock := shockMagnitude(damage)
	for _, d := range direct {
		injected := p.T.Rho * shock * d.strength / total
		if injected <= 0 {
			continue
		}
		if _, err := p.Store.UpsertEdge(ctx, &domain.Edge{
			Source:   seedID,
			Target:   d.id,
			Type:     domain.EdgeViolatedBy,
			Strength: injected,
		}); err != nil {
			return err
		}
	}
	return nil
}

// localScalar blends a memory's starting confidence with its empirical
// survival rate, weighted by how much evidence has accumulated against it.
func (p *Propagator) localScalar(m *domain.Memory) float64 {
	w := math.Log(float64(m.TimesTested)+1) / math.Log(float64(p.T.MaxTimesTested)+1)
	w = clamp01(w)
	return m.StartingConfidence*(1-w) + m.SurvivalRate()*w
}

// weightedMean computes the strength-weighted mean of neighbours' current
// scalar values over edges incident to id within the given edge set.
func weightedMean(id string, edges []*domain.Edge, current map[string]float64) float64 {
	sum, total := 0.0, 0.0
	for _, e := range edges {
		var other string
		switch id {
		case e.Source:
			other = e.Target
		case e.Target:
			other = e.Source
		default:
			continue
		}
		v, ok := current[other]
		if !ok {
			continue
		}
		sum += v * e.Strength
		total += e.Strength
	}
	if total == 0 {
		return 0
	}
	return sum / total
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
