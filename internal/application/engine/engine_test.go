package engine

import (
	"context"
	"testing"
	"time"

	"github.com/beliefgraph/core/internal/application/ingest"
	"github.com/beliefgraph/core/internal/application/resolution"
	"github.com/beliefgraph/core/internal/application/zone"
	"github.com/beliefgraph/core/internal/config"
	"github.com/beliefgraph/core/internal/domain"
	"github.com/beliefgraph/core/internal/infrastructure/gateway"
	"github.com/beliefgraph/core/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	store := storage.NewMemoryStore()
	gw := gateway.NewFakeGateway()
	cfg := config.Default()
	return New(store, gw, cfg)
}

func TestEngineIngestObservationSucceeds(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	res, err := e.Ingest(ctx, &ingest.Request{
		Content:   "the fed held rates steady",
		Source:    "market",
		SessionID: "s1",
		RequestID: "r1",
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusActive, res.Status)

	mem, err := e.Store.GetMemory(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, mem.State)
}

func TestEngineIngestRunsExposureCheckOnQueuedThought(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	seed, err := e.Ingest(ctx, &ingest.Request{
		Content: "cpi data came in hot", Source: "market", SessionID: "s1", RequestID: "r1",
	})
	require.NoError(t, err)

	res, err := e.Ingest(ctx, &ingest.Request{
		Content:       "rates will stay elevated",
		DerivedFrom:   []string{seed.ID},
		InvalidatesIf: []string{"the fed cuts rates"},
		SessionID:     "s1", RequestID: "r2",
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.ExposureQueued, res.ExposureCheck)

	mem, err := e.Store.GetMemory(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExposureCompleted, mem.ExposureCheckStatus)
}

func TestEngineResolveIncorrectTriggersCascade(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	seed, err := e.Ingest(ctx, &ingest.Request{
		Content: "the market will stay calm", Source: "market", SessionID: "s1", RequestID: "r1",
	})
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	pred, err := e.Ingest(ctx, &ingest.Request{
		Content:          "volatility will spike next week",
		DerivedFrom:      []string{seed.ID},
		ResolvesBy:       &future,
		OutcomeCondition: "vix closes above 25",
		SessionID:        "s1", RequestID: "r2",
	})
	require.NoError(t, err)

	child, err := e.Ingest(ctx, &ingest.Request{
		Content: "hedges should be unwound", DerivedFrom: []string{pred.ID}, SessionID: "s1", RequestID: "r3",
	})
	require.NoError(t, err)

	_, err = e.Resolve(ctx, resolution.Request{MemoryID: pred.ID, Outcome: domain.OutcomeIncorrect})
	require.NoError(t, err)

	resolved, err := e.Store.GetMemory(ctx, pred.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, resolved.State)
	assert.Equal(t, domain.OutcomeIncorrect, resolved.Outcome)

	updatedChild, err := e.Store.GetMemory(ctx, child.ID)
	require.NoError(t, err)
	assert.NotNil(t, updatedChild.PropagatedConfidence)
}

func TestEngineExtractZoneAroundIngestedMemory(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	seed, err := e.Ingest(ctx, &ingest.Request{
		Content: "inflation is cooling", Source: "market", SessionID: "s1", RequestID: "r1",
	})
	require.NoError(t, err)

	z, err := e.ExtractZone(ctx, seed.ID, zone.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, seed.ID, z.SeedID)
	assert.Contains(t, z.MemberIDs, seed.ID)
}

func TestEngineRunFullGraphPropagationIsANoopOnEmptyStore(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	n, err := e.RunFullGraphPropagation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEngineApplyCascadeBoostsThenIsIdempotentPerEvent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	require.NoError(t, e.Store.PutMemory(ctx, &domain.Memory{ID: "m1", StartingConfidence: 0.5}))
	require.NoError(t, e.Store.AppendEvent(ctx, &domain.MemoryEvent{
		ID: "ev1", EventType: domain.EventCascade, MemoryID: "m1", CreatedAt: time.Now(),
	}))

	mem, err := e.ApplyCascade(ctx, "m1", CascadeBoost, "ev1", "seed1", "resolved correct")
	require.NoError(t, err)
	require.NotNil(t, mem.PropagatedConfidence)
	first := *mem.PropagatedConfidence
	assert.Greater(t, first, 0.5)
	assert.Equal(t, 1, mem.CascadeBoosts)

	mem, err = e.ApplyCascade(ctx, "m1", CascadeBoost, "ev1", "seed1", "resolved correct")
	require.NoError(t, err)
	assert.InDelta(t, first, *mem.PropagatedConfidence, 1e-9)
	assert.Equal(t, 1, mem.CascadeBoosts)
}

func TestEngineApplyCascadeDismissLeavesConfidenceUntouched(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	require.NoError(t, e.Store.PutMemory(ctx, &domain.Memory{ID: "m1", StartingConfidence: 0.5}))

	mem, err := e.ApplyCascade(ctx, "m1", CascadeDismiss, "", "", "")
	require.NoError(t, err)
	assert.Nil(t, mem.PropagatedConfidence)
}

func TestEngineStatsSummarizesByStateAndRobustness(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	require.NoError(t, e.Store.PutMemory(ctx, &domain.Memory{ID: "high", State: domain.StateActive, StartingConfidence: 0.9}))
	require.NoError(t, e.Store.PutMemory(ctx, &domain.Memory{ID: "low", State: domain.StateViolated, StartingConfidence: 0.1,
		Violations: []domain.Violation{{ObsID: "o1"}}}))

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMemories)
	assert.Equal(t, 1, stats.ByState[domain.StateActive])
	assert.Equal(t, 1, stats.ByState[domain.StateViolated])
	assert.Equal(t, 1, stats.ByRobustness["high"])
	assert.Equal(t, 1, stats.ByRobustness["low"])
	assert.Equal(t, 1, stats.WithViolations)
}
