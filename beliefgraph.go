// Package beliefgraph is the public facade over the belief-graph memory
// engine: ingestion, exposure checking, cascade/full-graph propagation,
// reasoning-zone extraction, surprise scoring, and resolution, wired
// together behind a small set of exported types.
package beliefgraph

import (
	"time"

	"github.com/beliefgraph/core/internal/application/engine"
	"github.com/beliefgraph/core/internal/application/ingest"
	"github.com/beliefgraph/core/internal/application/resolution"
	"github.com/beliefgraph/core/internal/application/zone"
	"github.com/beliefgraph/core/internal/domain"
)

// Memory is a single belief-graph record: an observation, thought, or
// prediction depending on which optional fields are set.
type Memory = domain.Memory

// Kind classifies a Memory by field presence, never by Go type.
type Kind = domain.Kind

const (
	KindObservation = domain.KindObservation
	KindThought      = domain.KindThought
	KindPrediction   = domain.KindPrediction
)

// State is a Memory's lifecycle stage.
type State = domain.State

const (
	StateDraft     = domain.StateDraft
	StateActive    = domain.StateActive
	StateConfirmed = domain.StateConfirmed
	StateViolated  = domain.StateViolated
	StateResolved  = domain.StateResolved
)

// Outcome is set once a time-bound Memory resolves.
type Outcome = domain.Outcome

const (
	OutcomeCorrect    = domain.OutcomeCorrect
	OutcomeIncorrect  = domain.OutcomeIncorrect
	OutcomeVoided     = domain.OutcomeVoided
	OutcomeSuperseded = domain.OutcomeSuperseded
)

// Edge is a directed, typed, weighted connection between two memories.
type Edge = domain.Edge

// EdgeType classifies an Edge.
type EdgeType = domain.EdgeType

const (
	EdgeDerivedFrom = domain.EdgeDerivedFrom
	EdgeConfirmedBy = domain.EdgeConfirmedBy
	EdgeViolatedBy  = domain.EdgeViolatedBy
	EdgeSupersedes  = domain.EdgeSupersedes
)

// IngestRequest is the ingestion request DTO.
type IngestRequest = ingest.Request

// IngestResult is what Ingest returns.
type IngestResult = ingest.Result

// ResolveRequest describes a single resolve call.
type ResolveRequest = resolution.Request

// Zone is the result of a reasoning-zone extraction.
type Zone = zone.Zone

// ZoneParams bounds a single zone extraction.
type ZoneParams = zone.Params

// Engine is the entry point: construct one with New, then call Ingest,
// ExtractZone, Resolve, and RunFullGraphPropagation against it.
type Engine = engine.Engine

// Scheduler drives the engine's periodic jobs in the background.
type Scheduler = engine.Scheduler

// NewScheduler builds a scheduler that runs full-graph propagation and the
// resolution deadline sweep on the given intervals.
func NewScheduler(e *Engine, fullGraphInterval, resolutionSweep time.Duration) *Scheduler {
	return engine.NewScheduler(e, fullGraphInterval, resolutionSweep)
}

// CascadeAction is the effect ApplyCascade commits against a memory.
type CascadeAction = engine.CascadeAction

const (
	CascadeBoost   = engine.CascadeBoost
	CascadeDamage  = engine.CascadeDamage
	CascadeDismiss = engine.CascadeDismiss
)

// Stats summarizes the graph's current shape, returned by Engine.Stats.
type Stats = engine.Stats
