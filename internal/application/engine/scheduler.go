package engine

import (
	"context"
	"time"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/beliefgraph/core/internal/infrastructure/logger"
	"github.com/robfig/cron/v3"
)

// Scheduler drives the engine's periodic jobs: full-graph propagation
// (component G) and the resolution deadline sweep (component J), each
// coordinated across processes via the storage layer's advisory lock so
// only one runs at a time.
type Scheduler struct {
	engine *Engine
	cron   *cron.Cron
}

// NewScheduler builds a scheduler that runs full-graph propagation every
// fullGraphInterval and the resolution sweep every resolutionSweep.
func NewScheduler(e *Engine, fullGraphInterval, resolutionSweep time.Duration) *Scheduler {
	c := cron.New(cron.WithSeconds())
	s := &Scheduler{engine: e, cron: c}

	s.cron.Schedule(cron.Every(fullGraphInterval), cron.FuncJob(s.runFullGraphPropagation))
	s.cron.Schedule(cron.Every(resolutionSweep), cron.FuncJob(s.runResolutionSweep))

	return s
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop blocks until in-flight jobs complete, then stops the scheduler.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

func (s *Scheduler) runFullGraphPropagation() {
	log := logger.Component("scheduler")
	ctx := context.Background()

	ok, release, err := s.engine.Store.TryAdvisoryLock(ctx, "full-graph-propagation")
	if err != nil {
		log.Warn().Err(err).Msg("full-graph propagation lock attempt failed")
		return
	}
	if !ok {
		return
	}
	defer release()

	if _, err := s.engine.RunFullGraphPropagation(ctx); err != nil {
		log.Warn().Err(err).Msg("full-graph propagation run failed")
	}
}

func (s *Scheduler) runResolutionSweep() {
	log := logger.Component("scheduler")
	ctx := context.Background()

	ok, release, err := s.engine.Store.TryAdvisoryLock(ctx, "resolution-sweep")
	if err != nil {
		log.Warn().Err(err).Msg("resolution sweep lock attempt failed")
		return
	}
	if !ok {
		return
	}
	defer release()

	ids, err := s.engine.Store.ListActiveMemoryIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("resolution sweep failed to list active memories")
		return
	}

	now := time.Now()
	members, err := s.engine.Store.ListByIDs(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Msg("resolution sweep failed to fetch memories")
		return
	}
	for _, m := range members {
		if overdue(m, now) {
			log.Info().Str("memory_id", m.ID).Msg("time-bound memory passed resolves_by without resolution")
		}
	}
}

func overdue(m *domain.Memory, now time.Time) bool {
	return m.IsTimeBound() && m.State != domain.StateResolved && m.ResolvesBy.Before(now)
}
