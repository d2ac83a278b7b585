// Package surprise implements the predictive-error score (component I):
// how much a memory diverges from what similar existing memories already
// believe, decayed by how structurally integrated it already is. The score
// is computed when Score or Revalidate is called; the ingestion pipeline
// does not compute or store it.
package surprise

import (
	"context"
	"math"
	"sort"

	"github.com/beliefgraph/core/internal/domain"
)

const (
	queryTopK   = 6
	keepTopK    = 5
	depthWeight = 0.1
	minNeighborWeight = 0.1
	revalidateDelta   = 0.05
)

// Scorer computes and optionally caches surprise scores.
type Scorer struct {
	Store domain.Storage
}

func NewScorer(store domain.Storage) *Scorer {
	return &Scorer{Store: store}
}

// Score computes mem's surprise score against its nearest neighbours in
// content space, excluding itself.
func (s *Scorer) Score(ctx context.Context, mem *domain.Memory, embedding []float32) (float64, error) {
	matches, err := s.Store.ContentIndex().Query(ctx, embedding, queryTopK, nil, 0)
	if err != nil {
		return 0, err
	}

	var neighbors []domain.VectorMatch
	for _, m := range matches {
		if m.ID == mem.ID {
			continue
		}
		neighbors = append(neighbors, m)
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Score > neighbors[j].Score })
	if len(neighbors) > keepTopK {
		neighbors = neighbors[:keepTopK]
	}
	if len(neighbors) == 0 {
		return 0, nil
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	others, err := s.Store.ListByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	confByID := make(map[string]float64, len(others))
	for _, o := range others {
		confByID[o.ID] = o.EffectiveConfidence()
	}

	weightedSim, totalWeight := 0.0, 0.0
	for _, n := range neighbors {
		conf, ok := confByID[n.ID]
		if !ok {
			continue
		}
		weight := math.Max(conf, minNeighborWeight)
		weightedSim += n.Score * weight
		totalWeight += weight
	}
	weightedMeanSimilarity := 0.0
	if totalWeight > 0 {
		weightedMeanSimilarity = weightedSim / totalWeight
	}

	depth := float64(mem.Centrality + mem.TimesTested)
	raw := (1 - weightedMeanSimilarity) * (1 / (1 + depthWeight*depth))
	return clamp01(raw), nil
}

// Revalidate recomputes mem's surprise score and, if it differs from the
// cached value by more than revalidateDelta, writes the refreshed value
// back. Callers surfacing "most surprising" queries should call this
// instead of trusting a stale cached value.
func (s *Scorer) Revalidate(ctx context.Context, mem *domain.Memory, embedding []float32) (float64, error) {
	fresh, err := s.Score(ctx, mem, embedding)
	if err != nil {
		return 0, err
	}
	if mem.Surprise == nil || math.Abs(*mem.Surprise-fresh) > revalidateDelta {
		v := fresh
		mem.Surprise = &v
		if err := s.Store.PutMemory(ctx, mem); err != nil {
			return fresh, err
		}
	}
	return fresh, nil
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
