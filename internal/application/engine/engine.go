// Package engine wires the ingestion pipeline, exposure checker, cascade
// propagator, full-graph propagator, zone extractor, surprise scorer, and
// resolution service into a single runnable belief-graph engine.
package engine

import (
	"context"
	"time"

	"github.com/beliefgraph/core/internal/application/cascade"
	"github.com/beliefgraph/core/internal/application/exposure"
	"github.com/beliefgraph/core/internal/application/ingest"
	"github.com/beliefgraph/core/internal/application/propagation"
	"github.com/beliefgraph/core/internal/application/resolution"
	"github.com/beliefgraph/core/internal/application/surprise"
	"github.com/beliefgraph/core/internal/application/zone"
	"github.com/beliefgraph/core/internal/config"
	"github.com/beliefgraph/core/internal/domain"
	beliefgraphErrors "github.com/beliefgraph/core/internal/domain/errors"
	"github.com/beliefgraph/core/internal/infrastructure/gateway"
	"github.com/beliefgraph/core/internal/infrastructure/logger"
)

// Engine is the top-level façade over every belief-graph component.
type Engine struct {
	Store   domain.Storage
	Gateway gateway.Gateway
	Config  *config.Config

	Pipeline   *ingest.Pipeline
	Checker    *exposure.Checker
	Cascade    *cascade.Propagator
	Propagator *propagation.Propagator
	Zones      *zone.Extractor
	Surprise   *surprise.Scorer
	Resolution *resolution.Service

	log logger.Logger
}

// New wires every component against the given storage and gateway,
// deriving each component's tunables from cfg.
func New(store domain.Storage, gw gateway.Gateway, cfg *config.Config) *Engine {
	log := logger.Component("engine")

	e := &Engine{Store: store, Gateway: gw, Config: cfg, log: log}

	e.Cascade = cascade.NewPropagator(store, cascade.Tunables{
		Rho:             cfg.PropagationRho,
		Alpha:           cfg.ShockAlpha,
		Eta:             cfg.ShockEta,
		MinEdgeStrength: cfg.MinEdgeStrength,
		MaxIterations:   3,
		MaxTimesTested:  1,
	})

	e.Checker = exposure.NewChecker(store, gw, exposure.Thresholds{
		MinSimilarity:   cfg.MinSimilarity,
		MaxCandidates:   cfg.MaxCandidates,
		ViolateConfirm:  cfg.ViolationThreshold,
		ConfirmConfirm:  cfg.ConfirmThreshold,
		CentralityFloor: 3,
	}, cfg.JudgeConcurrency, func(ctx context.Context, seedID string, damage domain.DamageLevel) {
		if _, err := e.Cascade.Run(ctx, seedID, damage); err != nil {
			log.Warn().Err(err).Str("seed_id", seedID).Msg("cascade propagation failed")
		}
	})

	e.Pipeline = &ingest.Pipeline{
		Store:   store,
		Gateway: gw,
		Dedup: ingest.DedupThresholds{
			High:       cfg.DedupThreshold,
			Low:        cfg.DedupLowerThreshold,
			Confidence: cfg.DedupConfidenceThreshold,
		},
		OnExposure: func(ctx context.Context, memoryID string, embedding []float32) {
			mem, err := store.GetMemory(ctx, memoryID)
			if err != nil {
				log.Warn().Err(err).Str("memory_id", memoryID).Msg("exposure check skipped: memory fetch failed")
				return
			}
			if err := e.Checker.Check(ctx, mem, embedding); err != nil {
				log.Warn().Err(err).Str("memory_id", memoryID).Msg("exposure check failed")
			}
		},
	}

	e.Propagator = propagation.NewPropagator(store, propagation.Tunables{
		Alpha:            cfg.ShockAlpha,
		Eta:              cfg.ShockEta,
		MinEdgeStrength:  cfg.MinEdgeStrength,
		Epsilon:          1e-3,
		CappedIterations: 5,
		MaxIterations:    25,
		PowerIterations:  20,
		ConvergenceTol:   1e-4,
	})

	e.Zones = zone.NewExtractor(store)
	e.Surprise = surprise.NewScorer(store)

	e.Resolution = resolution.NewService(store, 3, func(ctx context.Context, seedID string, damage domain.DamageLevel) {
		if _, err := e.Cascade.Run(ctx, seedID, damage); err != nil {
			log.Warn().Err(err).Str("seed_id", seedID).Msg("resolution cascade failed")
		}
	}, func(ctx context.Context, seedID string) {
		if _, err := e.Cascade.RunConfirmation(ctx, seedID); err != nil {
			log.Warn().Err(err).Str("seed_id", seedID).Msg("resolution confirmation cascade failed")
		}
	})

	return e
}

// Ingest runs the ingestion pipeline for req.
func (e *Engine) Ingest(ctx context.Context, req *ingest.Request) (*ingest.Result, error) {
	return e.Pipeline.Ingest(ctx, req)
}

// ExtractZone builds a reasoning zone around seedID.
func (e *Engine) ExtractZone(ctx context.Context, seedID string, p zone.Params) (*zone.Zone, error) {
	return e.Zones.Extract(ctx, seedID, p)
}

// Resolve closes out a time-bound memory.
func (e *Engine) Resolve(ctx context.Context, req resolution.Request) (*domain.Memory, error) {
	return e.Resolution.Resolve(ctx, req)
}

// RunFullGraphPropagation runs one pass of the periodic full-graph
// propagator (component G).
func (e *Engine) RunFullGraphPropagation(ctx context.Context) (int, error) {
	return e.Propagator.Run(ctx)
}

// CascadeAction is the effect a per-session dispatcher commits against a
// memory when it drains a queued cascade event.
type CascadeAction string

const (
	CascadeBoost   CascadeAction = "boost"
	CascadeDamage  CascadeAction = "damage"
	CascadeDismiss CascadeAction = "dismiss"
)

// ApplyCascade commits action against memoryID, the boundary call the
// per-session dispatcher makes after draining a cascade event off the
// queue. When eventID is non-empty, the apply is idempotent: if that event
// is already marked dispatched, the memory is returned unchanged instead
// of reapplying the action a second time.
func (e *Engine) ApplyCascade(ctx context.Context, memoryID string, action CascadeAction, eventID, sourceID, reason string) (*domain.Memory, error) {
	if eventID != "" {
		ev, err := e.Store.GetEvent(ctx, eventID)
		if err != nil {
			if _, ok := err.(*beliefgraphErrors.NotFoundError); !ok {
				return nil, err
			}
		} else if ev.Dispatched {
			return e.Store.GetMemory(ctx, memoryID)
		}
	}

	mem, err := e.Store.GetMemory(ctx, memoryID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	switch action {
	case CascadeBoost:
		if !mem.IsObservation() {
			prior := mem.EffectiveConfidence()
			v := clampUnit(prior + e.Cascade.T.Rho*(1-prior))
			mem.PropagatedConfidence = &v
		}
		mem.CascadeBoosts++
		mem.LastCascadeAt = &now
	case CascadeDamage:
		if !mem.IsObservation() {
			prior := mem.EffectiveConfidence()
			v := clampUnit(prior - e.Cascade.T.Rho*prior)
			mem.PropagatedConfidence = &v
		}
		mem.CascadeDamages++
		mem.LastCascadeAt = &now
	case CascadeDismiss:
		// The dispatcher elected not to apply this event's effect; only the
		// dispatched bit advances, the memory is untouched.
	default:
		return nil, beliefgraphErrors.NewValidationError("action", "unknown cascade action: "+string(action))
	}

	if action != CascadeDismiss {
		if err := e.Store.PutMemory(ctx, mem); err != nil {
			return nil, err
		}
	}

	if eventID != "" {
		if err := e.Store.MarkDispatched(ctx, eventID); err != nil {
			return nil, err
		}
	}

	if sourceID != "" || reason != "" {
		e.log.Info().Str("memory_id", memoryID).Str("action", string(action)).
			Str("source_id", sourceID).Str("reason", reason).Msg("cascade applied")
	}
	return mem, nil
}

// Stats summarizes the graph's current shape for monitoring and the admin
// surface: counts by lifecycle state, by confidence robustness tier, and
// how many memories carry at least one recorded violation.
type Stats struct {
	TotalMemories int
	ByState       map[domain.State]int
	ByRobustness  map[string]int
	WithViolations int
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// robustnessTier buckets a memory's effective confidence into a coarse
// reliability band for reporting.
func robustnessTier(m *domain.Memory) string {
	c := m.EffectiveConfidence()
	switch {
	case c >= 0.8:
		return "high"
	case c >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

// Stats computes the summary counts over every non-retracted memory,
// whatever its state.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	ids, err := e.Store.ListActiveMemoryIDs(ctx)
	if err != nil {
		return nil, err
	}
	members, err := e.Store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	s := &Stats{
		ByState:      map[domain.State]int{},
		ByRobustness: map[string]int{},
	}
	for _, m := range members {
		s.TotalMemories++
		s.ByState[m.State]++
		s.ByRobustness[robustnessTier(m)]++
		if len(m.Violations) > 0 {
			s.WithViolations++
		}
	}
	return s, nil
}
