package storage

import (
	"context"
	"testing"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	m := &domain.Memory{ID: "m1", Content: "rates rose", State: domain.StateActive}
	require.NoError(t, s.PutMemory(ctx, m))

	got, err := s.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "rates rose", got.Content)

	// Returned memories are copies: mutating the result must not leak back
	// into the store.
	got.Content = "mutated"
	reread, err := s.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "rates rose", reread.Content)
}

func TestMemoryStoreGetMemoryNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetMemory(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMemoryStoreListByIDsPreservesOrderAndOmitsMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.PutMemory(ctx, &domain.Memory{ID: id}))
	}

	out, err := s.ListByIDs(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].ID)
	assert.Equal(t, "a", out[1].ID)
}

func TestMemoryStoreUpsertEdgeMerges(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	e1, err := s.UpsertEdge(ctx, &domain.Edge{Source: "a", Target: "b", Type: domain.EdgeDerivedFrom, Strength: 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, e1.Strength, 1e-9)

	e2, err := s.UpsertEdge(ctx, &domain.Edge{Source: "a", Target: "b", Type: domain.EdgeDerivedFrom, Strength: 0.3})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, e2.Strength, 1e-9)

	// Merge clamps at 1.0.
	e3, err := s.UpsertEdge(ctx, &domain.Edge{Source: "a", Target: "b", Type: domain.EdgeDerivedFrom, Strength: 0.9})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, e3.Strength, 1e-9)
}

func TestMemoryStoreListActiveMemoryIDsExcludesRetracted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.PutMemory(ctx, &domain.Memory{ID: "active1"}))
	require.NoError(t, s.PutMemory(ctx, &domain.Memory{ID: "retracted1", Retracted: true}))
	require.NoError(t, s.PutMemory(ctx, &domain.Memory{ID: "active2"}))

	ids, err := s.ListActiveMemoryIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"active1", "active2"}, ids)
}

func TestMemoryStoreListAllEdgesFiltersByTypeAndStrength(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.UpsertEdge(ctx, &domain.Edge{Source: "a", Target: "b", Type: domain.EdgeDerivedFrom, Strength: 0.6})
	require.NoError(t, err)
	_, err = s.UpsertEdge(ctx, &domain.Edge{Source: "c", Target: "d", Type: domain.EdgeViolatedBy, Strength: 0.2})
	require.NoError(t, err)

	support, err := s.ListAllEdges(ctx, []domain.EdgeType{domain.EdgeDerivedFrom, domain.EdgeConfirmedBy}, 0.1)
	require.NoError(t, err)
	require.Len(t, support, 1)
	assert.Equal(t, domain.EdgeDerivedFrom, support[0].Type)

	aboveThreshold, err := s.ListAllEdges(ctx, nil, 0.5)
	require.NoError(t, err)
	require.Len(t, aboveThreshold, 1)
}

func TestMemoryStoreTryAdvisoryLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok1, release1, err := s.TryAdvisoryLock(ctx, "job")
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, _, err := s.TryAdvisoryLock(ctx, "job")
	require.NoError(t, err)
	assert.False(t, ok2)

	release1()

	ok3, release3, err := s.TryAdvisoryLock(ctx, "job")
	require.NoError(t, err)
	assert.True(t, ok3)
	release3()
}

func TestMemoryStoreClaimDueEventsOrdersAndLimits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.AppendEvent(ctx, &domain.MemoryEvent{ID: "e1", SessionID: "s1", EventType: domain.EventViolation}))
	require.NoError(t, s.AppendEvent(ctx, &domain.MemoryEvent{ID: "e2", SessionID: "s1", EventType: domain.EventCascade}))
	require.NoError(t, s.AppendEvent(ctx, &domain.MemoryEvent{ID: "e3", SessionID: "other", EventType: domain.EventCascade}))

	claimed, err := s.ClaimDueEvents(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "e1", claimed[0].ID)

	remaining, err := s.ClaimDueEvents(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "e2", remaining[0].ID)

	none, err := s.ClaimDueEvents(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemVectorIndexQueryRanksByScoreAndRespectsFilter(t *testing.T) {
	ctx := context.Background()
	idx := newMemVectorIndex()
	require.NoError(t, idx.Upsert(ctx, []domain.VectorRecord{
		{ID: "close", Vector: []float32{1, 0}, Metadata: map[string]any{"kind": "observation"}},
		{ID: "far", Vector: []float32{0, 1}, Metadata: map[string]any{"kind": "observation"}},
		{ID: "filtered-out", Vector: []float32{1, 0}, Metadata: map[string]any{"kind": "thought"}},
	}))

	matches, err := idx.Query(ctx, []float32{1, 0}, 5, map[string]any{"kind": "observation"}, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "close", matches[0].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}
