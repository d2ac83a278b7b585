package propagation

import (
	"context"
	"testing"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/beliefgraph/core/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunUpdatesConnectedComponentTowardSupportMean(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, store.PutMemory(ctx, &domain.Memory{
		ID: "anchor", Source: domain.SourceMarket, StartingConfidence: 0.9,
	}))
	require.NoError(t, store.PutMemory(ctx, &domain.Memory{
		ID: "derived", DerivedFrom: []string{"anchor"}, StartingConfidence: 0.2, TimesTested: 1,
	}))
	_, err := store.UpsertEdge(ctx, &domain.Edge{Source: "anchor", Target: "derived", Type: domain.EdgeDerivedFrom, Strength: 1.0})
	require.NoError(t, err)

	p := NewPropagator(store, DefaultTunables())
	n, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	updated, err := store.GetMemory(ctx, "derived")
	require.NoError(t, err)
	require.NotNil(t, updated.PropagatedConfidence)
	assert.Greater(t, *updated.PropagatedConfidence, 0.2)
}

func TestRunNeverUpdatesObservations(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, store.PutMemory(ctx, &domain.Memory{
		ID: "obsA", Source: domain.SourceMarket, StartingConfidence: 0.9,
	}))
	require.NoError(t, store.PutMemory(ctx, &domain.Memory{
		ID: "obsB", Source: domain.SourceMarket, StartingConfidence: 0.1,
	}))
	_, err := store.UpsertEdge(ctx, &domain.Edge{Source: "obsA", Target: "obsB", Type: domain.EdgeConfirmedBy, Strength: 1.0})
	require.NoError(t, err)

	p := NewPropagator(store, DefaultTunables())
	n, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	updatedA, err := store.GetMemory(ctx, "obsA")
	require.NoError(t, err)
	assert.Nil(t, updatedA.PropagatedConfidence)

	updatedB, err := store.GetMemory(ctx, "obsB")
	require.NoError(t, err)
	assert.Nil(t, updatedB.PropagatedConfidence)
}

func TestRunPartitionsDisjointComponentsIndependently(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, store.PutMemory(ctx, &domain.Memory{
		ID: "a1", Source: domain.SourceMarket, StartingConfidence: 0.8,
	}))
	require.NoError(t, store.PutMemory(ctx, &domain.Memory{
		ID: "a2", DerivedFrom: []string{"a1"}, StartingConfidence: 0.3, TimesTested: 1,
	}))
	_, err := store.UpsertEdge(ctx, &domain.Edge{Source: "a1", Target: "a2", Type: domain.EdgeDerivedFrom, Strength: 1.0})
	require.NoError(t, err)

	require.NoError(t, store.PutMemory(ctx, &domain.Memory{
		ID: "isolated", Source: domain.SourceMarket, StartingConfidence: 0.5,
	}))

	p := NewPropagator(store, DefaultTunables())
	n, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	isolated, err := store.GetMemory(ctx, "isolated")
	require.NoError(t, err)
	assert.Nil(t, isolated.PropagatedConfidence)
}

func TestConnectedComponentsPartitionsByAdjacency(t *testing.T) {
	adjacency := map[string][]string{
		"a": {"b"},
		"b": {"a"},
		"c": {"d"},
		"d": {"c"},
	}
	components := connectedComponents([]string{"a", "b", "c", "d", "e"}, adjacency)
	require.Len(t, components, 3)

	sizes := map[int]int{}
	for _, c := range components {
		sizes[len(c)]++
	}
	assert.Equal(t, 2, sizes[2])
	assert.Equal(t, 1, sizes[1])
}

func TestEstimateSpectralRadiusZeroWithNoEdges(t *testing.T) {
	p := &Propagator{T: DefaultTunables()}
	updateable := map[string]bool{"a": true, "b": true}
	sigma := p.estimateSpectralRadius(updateable, nil, nil)
	assert.Equal(t, 0.0, sigma)
}

func TestEstimateSpectralRadiusEmptyUpdateableIsZero(t *testing.T) {
	p := &Propagator{T: DefaultTunables()}
	sigma := p.estimateSpectralRadius(map[string]bool{}, nil, nil)
	assert.Equal(t, 0.0, sigma)
}

func TestRunEmptyGraphIsANoop(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	p := NewPropagator(store, DefaultTunables())
	n, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
