// Package resolution implements the resolution service (component J):
// closing out a time-bound memory with an outcome and triggering the
// cascade appropriate to it.
package resolution

import (
	"context"
	"time"

	"github.com/beliefgraph/core/internal/application/exposure"
	"github.com/beliefgraph/core/internal/domain"
	beliefgraphErrors "github.com/beliefgraph/core/internal/domain/errors"
	"github.com/google/uuid"
)

// Request describes a single resolve call.
type Request struct {
	MemoryID   string
	Outcome    domain.Outcome
	ReplacedBy string // optional, required to be non-retracted and not self
	Force      bool   // bypass the already-resolved guard
}

// CascadeTrigger hands a resolved memory off to the violation cascade
// (component F), keeping this package independent of the cascade package.
type CascadeTrigger func(ctx context.Context, seedID string, damage domain.DamageLevel)

// ConfirmTrigger hands a correctly-resolved memory off to the cascade
// package's positive shock, boosting its derived_from descendants'
// propagated_confidence.
type ConfirmTrigger func(ctx context.Context, seedID string)

// Service resolves time-bound memories and drives their outcome-dependent
// cascade.
type Service struct {
	Store           domain.Storage
	CentralityFloor int
	OnViolation     CascadeTrigger
	OnConfirm       ConfirmTrigger
}

func NewService(store domain.Storage, centralityFloor int, onViolation CascadeTrigger, onConfirm ConfirmTrigger) *Service {
	return &Service{Store: store, CentralityFloor: centralityFloor, OnViolation: onViolation, OnConfirm: onConfirm}
}

// Resolve applies req's outcome to the named memory.
func (s *Service) Resolve(ctx context.Context, req Request) (*domain.Memory, error) {
	mem, err := s.Store.GetMemory(ctx, req.MemoryID)
	if err != nil {
		return nil, err
	}

	if mem.State == domain.StateResolved && !req.Force {
		return nil, beliefgraphErrors.NewConflictError("already resolved", mem.ID, string(mem.State), "")
	}

	if req.ReplacedBy != "" {
		if req.ReplacedBy == mem.ID {
			return nil, beliefgraphErrors.NewValidationError("replaced_by", "a memory cannot supersede itself")
		}
		replacement, err := s.Store.GetMemory(ctx, req.ReplacedBy)
		if err != nil {
			return nil, err
		}
		if replacement.Retracted {
			return nil, beliefgraphErrors.NewValidationError("replaced_by", "replacement memory is retracted")
		}
	}

	now := time.Now()
	mem.State = domain.StateResolved
	mem.Outcome = req.Outcome
	mem.UpdatedAt = now
	if req.ReplacedBy != "" {
		mem.ReplacedBy = req.ReplacedBy
	}

	if req.ReplacedBy != "" {
		if _, err := s.Store.UpsertEdge(ctx, &domain.Edge{
			Source:   mem.ID,
			Target:   req.ReplacedBy,
			Type:     domain.EdgeSupersedes,
			Strength: 1.0,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.Store.DeleteConditionVectors(ctx, mem.ID); err != nil {
		return nil, err
	}

	if err := s.Store.PutMemory(ctx, mem); err != nil {
		return nil, err
	}

	switch req.Outcome {
	case domain.OutcomeCorrect:
		if err := s.positiveCascade(ctx, mem); err != nil {
			return nil, err
		}
		if s.OnConfirm != nil {
			s.OnConfirm(ctx, mem.ID)
		}
	case domain.OutcomeIncorrect, domain.OutcomeSuperseded:
		if s.OnViolation != nil {
			core, err := exposure.IsCore(ctx, s.Store, mem, s.CentralityFloor)
			if err != nil {
				return nil, err
			}
			damage := domain.DamagePeripheral
			if core {
				damage = domain.DamageCore
			}
			s.OnViolation(ctx, mem.ID, damage)
		}
	case domain.OutcomeVoided:
		// no cascade
	}

	if err := s.Store.AppendEvent(ctx, &domain.MemoryEvent{
		ID:        uuid.NewString(),
		EventType: domain.EventResolution,
		MemoryID:  mem.ID,
		Context:   map[string]any{"outcome": string(req.Outcome)},
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	return mem, nil
}

// positiveCascade upserts a confirmed_by edge, proportional to the
// original derived_from edge's strength, from the resolved memory to each
// direct derived_from descendant.
func (s *Service) positiveCascade(ctx context.Context, mem *domain.Memory) error {
	edges, err := s.Store.ListEdgesIncident(ctx, []string{mem.ID}, []domain.EdgeType{domain.EdgeDerivedFrom}, 0)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if e.Source != mem.ID {
			continue
		}
		if _, err := s.Store.UpsertEdge(ctx, &domain.Edge{
			Source:   mem.ID,
			Target:   e.Target,
			Type:     domain.EdgeConfirmedBy,
			Strength: e.Strength,
		}); err != nil {
			return err
		}
	}
	return nil
}
