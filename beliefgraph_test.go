package beliefgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacadeIngestAndExtractZoneRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	gw := NewFakeGateway()
	cfg := DefaultConfig()

	e := New(store, gw, cfg)

	res, err := e.Ingest(ctx, &IngestRequest{
		Content:   "the central bank held rates steady",
		Source:    "market",
		SessionID: "s1",
		RequestID: "r1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)

	mem, err := store.GetMemory(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, mem.State)
	assert.Equal(t, KindObservation, mem.Kind())

	z, err := e.ExtractZone(ctx, res.ID, ZoneParams{MinStrength: 0.3, MaxDepth: 3, MaxSize: 30, Lambda: 0.2, RhoPenalty: 0.1})
	require.NoError(t, err)
	assert.Contains(t, z.MemberIDs, res.ID)
}

func TestFacadeResolveCorrectMarksResolved(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	gw := NewFakeGateway()
	cfg := DefaultConfig()
	e := New(store, gw, cfg)

	res, err := e.Ingest(ctx, &IngestRequest{
		Content:   "quarterly earnings beat expectations",
		Source:    "earnings",
		SessionID: "s1",
		RequestID: "r1",
	})
	require.NoError(t, err)

	mem, err := e.Resolve(ctx, ResolveRequest{MemoryID: res.ID, Outcome: OutcomeCorrect})
	require.NoError(t, err)
	assert.Equal(t, StateResolved, mem.State)
	assert.Equal(t, OutcomeCorrect, mem.Outcome)
}

func TestDefaultConfigPassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestFacadeResolveCorrectCascadesBoostToDescendant(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	gw := NewFakeGateway()
	cfg := DefaultConfig()
	e := New(store, gw, cfg)

	seed, err := e.Ingest(ctx, &IngestRequest{
		Content: "guidance was reiterated", Source: "earnings", SessionID: "s1", RequestID: "r1",
	})
	require.NoError(t, err)

	child, err := e.Ingest(ctx, &IngestRequest{
		Content: "the stock should hold its gains", DerivedFrom: []string{seed.ID}, SessionID: "s1", RequestID: "r2",
	})
	require.NoError(t, err)

	before, err := store.GetMemory(ctx, child.ID)
	require.NoError(t, err)
	priorConfidence := before.EffectiveConfidence()

	_, err = e.Resolve(ctx, ResolveRequest{MemoryID: seed.ID, Outcome: OutcomeCorrect})
	require.NoError(t, err)

	after, err := store.GetMemory(ctx, child.ID)
	require.NoError(t, err)
	require.NotNil(t, after.PropagatedConfidence)
	assert.GreaterOrEqual(t, *after.PropagatedConfidence, priorConfidence)
}

func TestFacadeApplyCascadeAndStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	gw := NewFakeGateway()
	cfg := DefaultConfig()
	e := New(store, gw, cfg)

	seed, err := e.Ingest(ctx, &IngestRequest{
		Content: "rates will hold", Source: "market", SessionID: "s1", RequestID: "r2",
	})
	require.NoError(t, err)
	thought, err := e.Ingest(ctx, &IngestRequest{
		Content: "markets stay calm", DerivedFrom: []string{seed.ID}, SessionID: "s1", RequestID: "r3",
	})
	require.NoError(t, err)

	mem, err := e.ApplyCascade(ctx, thought.ID, CascadeBoost, "", "", "manual review")
	require.NoError(t, err)
	require.NotNil(t, mem.PropagatedConfidence)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalMemories, 2)
	assert.Greater(t, stats.ByState[StateActive], 0)
}
