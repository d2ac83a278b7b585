// Package ingest implements the ingestion & deduplication pipeline
// (component D): validate, dedup-check, persist, update vectors and edges,
// and schedule an exposure check.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/beliefgraph/core/internal/domain"
	beliefgraphErrors "github.com/beliefgraph/core/internal/domain/errors"
	"github.com/beliefgraph/core/internal/infrastructure/gateway"
	"github.com/beliefgraph/core/internal/infrastructure/logger"
	"github.com/google/uuid"
)

// Status is the outcome status returned to the caller.
type Status string

const (
	StatusActive Status = "active"
	StatusDraft  Status = "draft"
)

// ExposureCheckOutcome reports whether an exposure check was queued.
type ExposureCheckOutcome string

const (
	ExposureQueued  ExposureCheckOutcome = "queued"
	ExposureSkipped ExposureCheckOutcome = "skipped"
)

// Result is returned to the ingestion caller.
type Result struct {
	ID            string
	Status        Status
	TimeBound     bool
	ExposureCheck ExposureCheckOutcome
	Warnings      []string
}

// CompletenessOracle optionally inspects a draft memory and returns
// human-readable warnings about missing or weak fields. A nil oracle or an
// oracle error is treated as "no warnings" — the completeness check is
// advisory, never a hard failure.
type CompletenessOracle func(ctx context.Context, req *Request) ([]string, error)

// Pipeline wires storage, the gateway, and dedup thresholds into the
// ingest operation.
type Pipeline struct {
	Store      domain.Storage
	Gateway    gateway.Gateway
	Dedup      DedupThresholds
	Oracle     CompletenessOracle
	OnExposure func(ctx context.Context, memoryID string, embedding []float32)
}

// Ingest runs the full pipeline for a single request.
func (p *Pipeline) Ingest(ctx context.Context, req *Request) (*Result, error) {
	log := logger.Component("ingest").With().Str("request_id", req.RequestID).Logger()
	now := time.Now()

	existsAndNotRetracted := func(id string) (bool, error) {
		m, err := p.Store.GetMemory(ctx, id)
		if err != nil {
			if _, ok := err.(*beliefgraphErrors.NotFoundError); ok {
				return false, nil
			}
			return false, err
		}
		return !m.Retracted, nil
	}

	if err := Preconditions(req, now, existsAndNotRetracted); err != nil {
		return nil, err
	}

	embeddings, err := p.Gateway.Embed(ctx, []string{req.Content})
	if err != nil {
		return nil, err
	}
	contentEmbedding := embeddings[0]

	if err := CheckDuplicate(ctx, p.Store.ContentIndex(), p.Gateway, req.Content, contentEmbedding, p.Dedup); err != nil {
		return nil, err
	}

	var warnings []string
	if p.Oracle != nil {
		if w, err := p.Oracle(ctx, req); err == nil {
			warnings = w
		} else {
			log.Warn().Err(err).Msg("completeness oracle failed; proceeding without warnings")
		}
	}

	kind := Kind(req)
	startingConfidence := domain.DefaultStartingConfidence(kind, domain.Source(req.Source))

	status := StatusActive
	state := domain.StateActive
	if len(warnings) > 0 {
		status = StatusDraft
		state = domain.StateDraft
	}

	id := uuid.NewString()
	mem := &domain.Memory{
		ID:                 id,
		Content:            req.Content,
		Source:             domain.Source(req.Source),
		SourceURL:          req.SourceURL,
		DerivedFrom:        req.DerivedFrom,
		Assumes:            req.Assumes,
		InvalidatesIf:      req.InvalidatesIf,
		ConfirmsIf:         req.ConfirmsIf,
		OutcomeCondition:   req.OutcomeCondition,
		ResolvesBy:         req.ResolvesBy,
		StartingConfidence: startingConfidence,
		State:              state,
		Tags:               req.Tags,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	hasConditions := len(req.InvalidatesIf) > 0 || len(req.ConfirmsIf) > 0
	if hasConditions {
		mem.ExposureCheckStatus = domain.ExposurePending
	} else {
		mem.ExposureCheckStatus = domain.ExposureSkipped
	}

	if err := p.Store.PutMemory(ctx, mem); err != nil {
		return nil, err
	}

	for _, sourceID := range req.DerivedFrom {
		edge := &domain.Edge{
			Source:   sourceID,
			Target:   id,
			Type:     domain.EdgeDerivedFrom,
			Strength: 1.0,
		}
		if _, err := p.Store.UpsertEdge(ctx, edge); err != nil {
			return nil, fmt.Errorf("upserting derived_from edge: %w", err)
		}
		if src, err := p.Store.GetMemory(ctx, sourceID); err == nil {
			src.Centrality++
			_ = p.Store.PutMemory(ctx, src)
		}
	}

	if err := upsertContentVector(ctx, p.Store.ContentIndex(), mem, contentEmbedding); err != nil {
		return nil, err
	}

	exposureOutcome := ExposureSkipped
	if hasConditions {
		if err := p.indexConditions(ctx, mem); err != nil {
			return nil, err
		}
		exposureOutcome = ExposureQueued
		if p.OnExposure != nil {
			p.OnExposure(ctx, id, contentEmbedding)
		}
	}

	return &Result{
		ID:            id,
		Status:        status,
		TimeBound:     mem.IsTimeBound(),
		ExposureCheck: exposureOutcome,
		Warnings:      warnings,
	}, nil
}

func upsertContentVector(ctx context.Context, idx domain.VectorIndex, mem *domain.Memory, embedding []float32) error {
	return idx.Upsert(ctx, []domain.VectorRecord{{
		ID:     mem.ID,
		Vector: embedding,
		Metadata: map[string]any{
			"content":    mem.Content,
			"kind":       string(mem.Kind()),
			"state":      string(mem.State),
			"time_bound": mem.IsTimeBound(),
		},
	}})
}

// indexConditions embeds and upserts one vector per invalidates_if /
// confirms_if predicate, under the `{memory_id}:inv:{k}` /
// `{memory_id}:conf:{k}` id scheme.
func (p *Pipeline) indexConditions(ctx context.Context, mem *domain.Memory) error {
	if len(mem.InvalidatesIf) > 0 {
		vecs, err := p.Gateway.Embed(ctx, mem.InvalidatesIf)
		if err != nil {
			return err
		}
		records := make([]domain.VectorRecord, len(mem.InvalidatesIf))
		for k, cond := range mem.InvalidatesIf {
			records[k] = domain.VectorRecord{
				ID:     fmt.Sprintf("%s:inv:%d", mem.ID, k),
				Vector: vecs[k],
				Metadata: map[string]any{
					"memory_id":      mem.ID,
					"k":              k,
					"condition_text": cond,
					"time_bound":     mem.IsTimeBound(),
				},
			}
		}
		if err := p.Store.InvalidatesIndex().Upsert(ctx, records); err != nil {
			return err
		}
	}
	if len(mem.ConfirmsIf) > 0 {
		vecs, err := p.Gateway.Embed(ctx, mem.ConfirmsIf)
		if err != nil {
			return err
		}
		records := make([]domain.VectorRecord, len(mem.ConfirmsIf))
		for k, cond := range mem.ConfirmsIf {
			records[k] = domain.VectorRecord{
				ID:     fmt.Sprintf("%s:conf:%d", mem.ID, k),
				Vector: vecs[k],
				Metadata: map[string]any{
					"memory_id":      mem.ID,
					"k":              k,
					"condition_text": cond,
					"time_bound":     mem.IsTimeBound(),
				},
			}
		}
		if err := p.Store.ConfirmsIndex().Upsert(ctx, records); err != nil {
			return err
		}
	}
	return nil
}
