package ingest

import (
	"context"
	"testing"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/beliefgraph/core/internal/infrastructure/gateway"
	"github.com/beliefgraph/core/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline() (*Pipeline, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	return &Pipeline{
		Store:   store,
		Gateway: gateway.NewFakeGateway(),
		Dedup:   DedupThresholds{High: 0.95, Low: 0.7, Confidence: 0.85},
	}, store
}

func TestIngestObservationPersistsActiveMemory(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()

	res, err := p.Ingest(ctx, &Request{
		Content:   "the fed raised rates by 25bps",
		Source:    "market",
		SessionID: "s1",
		RequestID: "r1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)
	assert.Equal(t, ExposureSkipped, res.ExposureCheck)
	assert.False(t, res.TimeBound)

	mem, err := store.GetMemory(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, mem.State)
	assert.Equal(t, domain.KindObservation, mem.Kind())
	assert.InDelta(t, domain.DefaultStartingConfidence(domain.KindObservation, domain.SourceMarket), mem.StartingConfidence, 1e-9)
}

func TestIngestThoughtWithConditionsQueuesExposureCheck(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()

	var exposureCalled bool
	p.OnExposure = func(ctx context.Context, memoryID string, embedding []float32) {
		exposureCalled = true
	}

	res, err := p.Ingest(ctx, &Request{
		Content:       "rates will stay elevated through the year",
		DerivedFrom:   nil,
		InvalidatesIf: []string{"the fed cuts rates"},
		SessionID:     "s1",
		RequestID:     "r2",
	})
	// A thought with no source and no derived_from fails the precondition
	// (needs at least one of source/derived_from), so ingest this as derived.
	assert.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, exposureCalled)

	seed, err := p.Ingest(ctx, &Request{
		Content:   "cpi data came in hot",
		Source:    "market",
		SessionID: "s1",
		RequestID: "r3",
	})
	require.NoError(t, err)

	res2, err := p.Ingest(ctx, &Request{
		Content:       "rates will stay elevated through the year",
		DerivedFrom:   []string{seed.ID},
		InvalidatesIf: []string{"the fed cuts rates"},
		SessionID:     "s1",
		RequestID:     "r4",
	})
	require.NoError(t, err)
	assert.Equal(t, ExposureQueued, res2.ExposureCheck)
	assert.True(t, exposureCalled)

	mem, err := store.GetMemory(ctx, res2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExposurePending, mem.ExposureCheckStatus)

	matches, err := store.InvalidatesIndex().Query(ctx, []float32{1}, 5, nil, -1)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestIngestIncrementsSourceCentrality(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()

	seed, err := p.Ingest(ctx, &Request{Content: "initial observation", Source: "market", SessionID: "s1", RequestID: "r1"})
	require.NoError(t, err)

	_, err = p.Ingest(ctx, &Request{Content: "a derived thought", DerivedFrom: []string{seed.ID}, SessionID: "s1", RequestID: "r2"})
	require.NoError(t, err)

	updatedSeed, err := store.GetMemory(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updatedSeed.Centrality)
}

func TestIngestRejectsHardDuplicate(t *testing.T) {
	p, store := newTestPipeline()
	ctx := context.Background()
	_ = store

	req := &Request{Content: "the fed raised rates by 25bps", Source: "market", SessionID: "s1", RequestID: "r1"}
	_, err := p.Ingest(ctx, req)
	require.NoError(t, err)

	_, err = p.Ingest(ctx, &Request{Content: "the fed raised rates by 25bps", Source: "market", SessionID: "s1", RequestID: "r2"})
	assert.Error(t, err)
}

func TestIngestCompletenessOracleWarningsProduceDraft(t *testing.T) {
	p, _ := newTestPipeline()
	p.Oracle = func(ctx context.Context, req *Request) ([]string, error) {
		return []string{"missing source_url"}, nil
	}
	ctx := context.Background()

	res, err := p.Ingest(ctx, &Request{Content: "an observation missing detail", Source: "market", SessionID: "s1", RequestID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, res.Status)
	assert.Equal(t, []string{"missing source_url"}, res.Warnings)
}
