// Package propagation implements the periodic full-graph propagator
// (component G): a damped fixed-point iteration per connected component,
// guarded by a power-iteration spectral-radius estimate so a component
// that would diverge gets capped instead of run to convergence.
package propagation

import (
	"context"
	"math"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/beliefgraph/core/internal/infrastructure/logger"
)

// Tunables configures the full-graph propagator.
type Tunables struct {
	Alpha           float64 // α: damping weight
	Eta             float64 // η: contradiction penalty weight
	MinEdgeStrength float64
	Epsilon         float64 // ε: non-contraction guard margin
	CappedIterations int    // iterations used when σ ≥ 1-ε
	MaxIterations    int    // iterations used otherwise
	PowerIterations  int    // iterations for the spectral-radius estimate
	ConvergenceTol   float64
}

// DefaultTunables returns the constants named.
func DefaultTunables() Tunables {
	return Tunables{
		Alpha:            0.6,
		Eta:              0.8,
		MinEdgeStrength:  0.1,
		Epsilon:          1e-3,
		CappedIterations: 5,
		MaxIterations:    25,
		PowerIterations:  20,
		ConvergenceTol:   1e-4,
	}
}

// Propagator runs the full-graph damped fixed point over all connected
// components in the belief graph.
type Propagator struct {
	Store domain.MemoryStore
	T     Tunables
}

func NewPropagator(store domain.MemoryStore, t Tunables) *Propagator {
	return &Propagator{Store: store, T: t}
}

// Run partitions the graph into connected components over support ∪
// contradiction edges and damp-iterates each independently.
func (p *Propagator) Run(ctx context.Context) (int, error) {
	log := logger.Component("propagation")

	ids, err := p.Store.ListActiveMemoryIDs(ctx)
	if err != nil {
		return 0, err
	}
	support, err := p.Store.ListAllEdges(ctx, []domain.EdgeType{domain.EdgeDerivedFrom, domain.EdgeConfirmedBy}, p.T.MinEdgeStrength)
	if err != nil {
		return 0, err
	}
	contradiction, err := p.Store.ListAllEdges(ctx, []domain.EdgeType{domain.EdgeViolatedBy}, p.T.MinEdgeStrength)
	if err != nil {
		return 0, err
	}

	adjacency := buildAdjacency(support, contradiction)
	components := connectedComponents(ids, adjacency)

	written := 0
	for _, component := range components {
		n, err := p.runComponent(ctx, component, support, contradiction)
		if err != nil {
			return written, err
		}
		written += n
	}
	log.Info().Int("components", len(components)).Int("updated", written).Msg("full-graph propagation complete")
	return written, nil
}

func (p *Propagator) runComponent(ctx context.Context, ids []string, support, contradiction []*domain.Edge) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	members, err := p.Store.ListByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*domain.Memory, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	current := make(map[string]float64, len(byID))
	updateable := make(map[string]bool, len(byID))
	for id, m := range byID {
		current[id] = m.EffectiveConfidence()
		if !m.IsObservation() {
			updateable[id] = true
		}
	}
	if len(updateable) == 0 {
		return 0, nil
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	localSupport := filterEdges(support, idSet)
	localContradiction := filterEdges(contradiction, idSet)

	sigma := p.estimateSpectralRadius(updateable, localSupport, localContradiction)

	maxIter := p.T.MaxIterations
	nonContracting := sigma >= 1-p.T.Epsilon
	if nonContracting {
		maxIter = p.T.CappedIterations
		logger.Component("propagation").Warn().Float64("sigma", sigma).Msg("component estimated non-contracting, capping iterations")
	}

	for iter := 0; iter < maxIter; iter++ {
		next := make(map[string]float64, len(current))
		for id, v := range current {
			next[id] = v
		}
		maxUpdate := 0.0
		for id := range updateable {
			supportMean := weightedMean(id, localSupport, current)
			contradictionMean := weightedMean(id, localContradiction, current)
			updated := clamp01((1-p.T.Alpha)*current[id] + p.T.Alpha*(supportMean-p.T.Eta*contradictionMean))
			if d := math.Abs(updated - current[id]); d > maxUpdate {
				maxUpdate = d
			}
			next[id] = updated
		}
		current = next
		if !nonContracting && maxUpdate < p.T.ConvergenceTol {
			break
		}
	}

	written := 0
	for id := range updateable {
		m := byID[id]
		final := current[id]
		prior := m.EffectiveConfidence()
		if math.Abs(final-prior) > 1e-6 {
			v := final
			m.PropagatedConfidence = &v
			if err := p.Store.PutMemory(ctx, m); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

// estimateSpectralRadius approximates σ = α·‖Â⁺ − η·Â⁻‖₂ by power iteration
// over the operator restricted to updateable nodes, using a random-ish but
// deterministic starting vector (all ones, since math/rand's Date-seeded
// variants are unavailable here and determinism aids reproducibility).
func (p *Propagator) estimateSpectralRadius(updateable map[string]bool, support, contradiction []*domain.Edge) float64 {
	if len(updateable) == 0 {
		return 0
	}
	vec := make(map[string]float64, len(updateable))
	for id := range updateable {
		vec[id] = 1
	}
	norm := l2Norm(vec)
	if norm == 0 {
		return 0
	}
	for id := range vec {
		vec[id] /= norm
	}

	var lambda float64
	for i := 0; i < p.T.PowerIterations; i++ {
		next := make(map[string]float64, len(vec))
		for id := range updateable {
			supportMean := weightedMean(id, support, vec)
			contradictionMean := weightedMean(id, contradiction, vec)
			next[id] = p.T.Alpha * (supportMean - p.T.Eta*contradictionMean)
		}
		n := l2Norm(next)
		if n == 0 {
			return 0
		}
		lambda = n
		for id := range next {
			next[id] /= n
		}
		vec = next
	}
	return lambda
}

func l2Norm(v map[string]float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func filterEdges(edges []*domain.Edge, idSet map[string]bool) []*domain.Edge {
	var out []*domain.Edge
	for _, e := range edges {
		if idSet[e.Source] && idSet[e.Target] {
			out = append(out, e)
		}
	}
	return out
}

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

func buildAdjacency(edgeSets ...[]*domain.Edge) map[string][]string {
	adj := make(map[string][]string)
	for _, edges := range edgeSets {
		for _, e := range edges {
			adj[e.Source] = append(adj[e.Source], e.Target)
			adj[e.Target] = append(adj[e.Target], e.Source)
		}
	}
	return adj
}

// connectedComponents partitions allIDs into connected components using
// the given adjacency, a plain BFS since component sizes here
// are small relative to total memory count.
func connectedComponents(allIDs []string, adjacency map[string][]string) [][]string {
	visited := make(map[string]bool, len(allIDs))
	var components [][]string

	for _, id := range allIDs {
		if visited[id] {
			continue
		}
		var component []string
		queue := []string{id}
		visited[id] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			for _, next := range adjacency[cur] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		components = append(components, component)
	}
	return components
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
