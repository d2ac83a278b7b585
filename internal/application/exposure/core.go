// Package exposure implements the bi-directional exposure checker
// (component E): given a newly created memory, it finds existing memories
// the new one contradicts or confirms and applies the resulting state
// transitions.
package exposure

import (
	"context"

	"github.com/beliefgraph/core/internal/domain"
)

// IsCore reports whether mem counts as a core belief: either its own
// centrality clears the floor, or it has a direct derived_from descendant
// within two hops that is still active. Core violations carry a larger
// cascade shock than peripheral ones.
func IsCore(ctx context.Context, store domain.MemoryStore, mem *domain.Memory, centralityFloor int) (bool, error) {
	if mem.Centrality >= centralityFloor {
		return true, nil
	}

	depth1, err := store.ListEdgesIncident(ctx, []string{mem.ID}, []domain.EdgeType{domain.EdgeDerivedFrom}, 0)
	if err != nil {
		return false, err
	}

	var depth1Targets []string
	for _, e := range depth1 {
		if e.Source == mem.ID {
			depth1Targets = append(depth1Targets, e.Target)
		}
	}
	if len(depth1Targets) == 0 {
		return false, nil
	}

	if ok, err := anyActiveDescendant(ctx, store, depth1Targets); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}

	depth2, err := store.ListEdgesIncident(ctx, depth1Targets, []domain.EdgeType{domain.EdgeDerivedFrom}, 0)
	if err != nil {
		return false, err
	}
	var depth2Targets []string
	for _, e := range depth2 {
		if contains(depth1Targets, e.Source) {
			depth2Targets = append(depth2Targets, e.Target)
		}
	}
	if len(depth2Targets) == 0 {
		return false, nil
	}
	return anyActiveDescendant(ctx, store, depth2Targets)
}

func anyActiveDescendant(ctx context.Context, store domain.MemoryStore, ids []string) (bool, error) {
	descendants, err := store.ListByIDs(ctx, ids)
	if err != nil {
		return false, err
	}
	for _, d := range descendants {
		if d.State == domain.StateActive {
			return true, nil
		}
	}
	return false, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
