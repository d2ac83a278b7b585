package exposure

import (
	"context"
	"sort"
	"time"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/beliefgraph/core/internal/infrastructure/concurrency"
	"github.com/beliefgraph/core/internal/infrastructure/gateway"
	"github.com/beliefgraph/core/internal/infrastructure/logger"
	"github.com/google/uuid"
)

// Thresholds configures the exposure checker's judge gates.
type Thresholds struct {
	MinSimilarity   float64
	MaxCandidates   int
	ViolateConfirm  float64 // confidence floor for a violation verdict
	ConfirmConfirm  float64 // confidence floor for a confirmation verdict
	CentralityFloor int
}

// CascadeTrigger is invoked once per recorded violation, with the violated
// memory as the seed, so the caller can hand off to the cascade propagator (F)
// without this package depending on it directly.
type CascadeTrigger func(ctx context.Context, seedID string, damage domain.DamageLevel)

// Checker runs the bi-directional exposure check for a single newly
// ingested memory.
type Checker struct {
	Store      domain.Storage
	Gateway    gateway.Gateway
	Thresholds Thresholds
	Pool       *concurrency.Pool
	OnCascade  CascadeTrigger
}

// NewChecker builds a checker with a bounded judge pool of the given size.
func NewChecker(store domain.Storage, gw gateway.Gateway, th Thresholds, judgeConcurrency int, onCascade CascadeTrigger) *Checker {
	return &Checker{
		Store:      store,
		Gateway:    gw,
		Thresholds: th,
		Pool:       concurrency.NewPool(judgeConcurrency),
		OnCascade:  onCascade,
	}
}

// candidateJudgment is one (target memory, condition text) pair awaiting
// or carrying a judge verdict.
type candidateJudgment struct {
	targetID  string // memory whose state transitions if the verdict matches
	obsID     string // observation memory credited as the source of the verdict
	reference string // observation content judged against condition
	condition string
	relation  string // "invalidates" | "confirms"
	score     float64
	verdict   *gateway.JudgeVerdict
}

// Check runs the exposure check for mem and applies all resulting state
// transitions. newEmbedding is the content embedding already computed
// during ingestion, reused here to avoid a second embed call.
func (c *Checker) Check(ctx context.Context, mem *domain.Memory, newEmbedding []float32) error {
	log := logger.Component("exposure").With().Str("memory_id", mem.ID).Logger()

	var candidates []candidateJudgment
	var err error
	if mem.IsObservation() {
		candidates, err = c.observationCandidates(ctx, mem, newEmbedding)
	} else {
		candidates, err = c.conditionCandidates(ctx, mem)
	}
	if err != nil {
		return err
	}

	judged := c.judgeAll(ctx, candidates)

	sort.SliceStable(judged, func(i, j int) bool { return judged[i].score > judged[j].score })

	for _, cj := range judged {
		if cj.verdict == nil {
			continue
		}
		switch {
		case cj.relation == "invalidates" && cj.verdict.Relation == "contradicts" && cj.verdict.Confidence >= c.Thresholds.ViolateConfirm:
			if err := c.recordViolation(ctx, cj.targetID, cj.obsID, cj.condition); err != nil {
				log.Warn().Err(err).Str("target", cj.targetID).Msg("recording violation failed")
			}
		case cj.relation == "confirms" && cj.verdict.Relation == "confirms" && cj.verdict.Confidence >= c.Thresholds.ConfirmConfirm:
			if err := c.recordConfirmation(ctx, cj.targetID, cj.obsID); err != nil {
				log.Warn().Err(err).Str("target", cj.targetID).Msg("recording confirmation failed")
			}
		}
	}

	// Re-read mem before marking it completed: recording a verdict against
	// mem itself (a new thought or prediction) has already written an
	// updated copy that the caller's mem does not reflect.
	latest, err := c.Store.GetMemory(ctx, mem.ID)
	if err != nil {
		return err
	}
	now := time.Now()
	latest.ExposureCheckStatus = domain.ExposureCompleted
	latest.ExposureCheckCompletedAt = &now
	mem.ExposureCheckStatus = domain.ExposureCompleted
	mem.ExposureCheckCompletedAt = &now
	return c.Store.PutMemory(ctx, latest)
}

func (c *Checker) observationCandidates(ctx context.Context, mem *domain.Memory, embedding []float32) ([]candidateJudgment, error) {
	var out []candidateJudgment

	invMatches, err := c.Store.InvalidatesIndex().Query(ctx, embedding, c.Thresholds.MaxCandidates, nil, c.Thresholds.MinSimilarity)
	if err != nil {
		return nil, err
	}
	for _, m := range invMatches {
		targetID, _ := m.Metadata["memory_id"].(string)
		condition, _ := m.Metadata["condition_text"].(string)
		if targetID == "" {
			continue
		}
		out = append(out, candidateJudgment{targetID: targetID, obsID: mem.ID, reference: mem.Content, condition: condition, relation: "invalidates", score: m.Score})
	}

	confMatches, err := c.Store.ConfirmsIndex().Query(ctx, embedding, c.Thresholds.MaxCandidates, nil, c.Thresholds.MinSimilarity)
	if err != nil {
		return nil, err
	}
	for _, m := range confMatches {
		targetID, _ := m.Metadata["memory_id"].(string)
		condition, _ := m.Metadata["condition_text"].(string)
		if targetID == "" {
			continue
		}
		timeBound, _ := m.Metadata["time_bound"].(bool)
		if !timeBound {
			continue
		}
		out = append(out, candidateJudgment{targetID: targetID, obsID: mem.ID, reference: mem.Content, condition: condition, relation: "confirms", score: m.Score})
	}

	return out, nil
}

func (c *Checker) conditionCandidates(ctx context.Context, mem *domain.Memory) ([]candidateJudgment, error) {
	var out []candidateJudgment

	conditions := append([]string{}, mem.InvalidatesIf...)
	relations := make([]string, len(mem.InvalidatesIf))
	for i := range relations {
		relations[i] = "invalidates"
	}
	if mem.IsTimeBound() {
		conditions = append(conditions, mem.ConfirmsIf...)
		for range mem.ConfirmsIf {
			relations = append(relations, "confirms")
		}
	}
	if len(conditions) == 0 {
		return nil, nil
	}

	embeddings, err := c.Gateway.Embed(ctx, conditions)
	if err != nil {
		return nil, err
	}

	for i, cond := range conditions {
		matches, err := c.Store.ContentIndex().Query(ctx, embeddings[i], c.Thresholds.MaxCandidates, map[string]any{"kind": "observation"}, c.Thresholds.MinSimilarity)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			obsContent, _ := m.Metadata["content"].(string)
			out = append(out, candidateJudgment{
				targetID:  mem.ID,
				obsID:     m.ID,
				reference: obsContent,
				condition: cond,
				relation:  relations[i],
				score:     m.Score,
			})
		}
	}
	return out, nil
}

// judgeAll runs a judge call per candidate under the bounded-concurrency
// pool, preserving input order in the returned slice regardless of
// completion order.
func (c *Checker) judgeAll(ctx context.Context, candidates []candidateJudgment) []candidateJudgment {
	if len(candidates) == 0 {
		return nil
	}
	out := make([]candidateJudgment, len(candidates))
	copy(out, candidates)

	done := make(chan int, len(out))
	for i := range out {
		i := i
		go func() {
			_ = c.Pool.Do(ctx, func() error {
				verdict, err := c.Gateway.Judge(ctx, out[i].reference, out[i].condition, out[i].relation)
				if err != nil {
					// Judge unreachable: treat as non-match, the safe default.
					out[i].verdict = nil
					return nil
				}
				out[i].verdict = verdict
				return nil
			})
			done <- i
		}()
	}
	for range out {
		<-done
	}
	return out
}

func (c *Checker) recordViolation(ctx context.Context, targetID, violatingObsID, condition string) error {
	release, ok, err := c.acquireLock(ctx, targetID)
	if err != nil {
		return err
	}
	if ok {
		defer release()
	}

	target, err := c.Store.GetMemory(ctx, targetID)
	if err != nil {
		return err
	}

	core, err := IsCore(ctx, c.Store, target, c.Thresholds.CentralityFloor)
	if err != nil {
		return err
	}
	damage := domain.DamagePeripheral
	if core {
		damage = domain.DamageCore
	}

	target.Violations = append(target.Violations, domain.Violation{
		ObsID:       violatingObsID,
		Condition:   condition,
		Timestamp:   time.Now(),
		DamageLevel: damage,
		SourceType:  domain.ViolationDirect,
	})
	target.Contradictions++
	target.TimesTested++

	if damage == domain.DamageCore || (target.SurvivalRate() < 0.5 && len(target.Violations) >= 1) {
		target.State = domain.StateViolated
	}

	if target.State != domain.StateActive {
		if err := c.Store.DeleteConditionVectors(ctx, target.ID); err != nil {
			return err
		}
	}

	if _, err := c.Store.UpsertEdge(ctx, &domain.Edge{
		Source:   violatingObsID,
		Target:   targetID,
		Type:     domain.EdgeViolatedBy,
		Strength: 1.0,
	}); err != nil {
		return err
	}

	if err := c.Store.PutMemory(ctx, target); err != nil {
		return err
	}

	if err := c.Store.AppendEvent(ctx, &domain.MemoryEvent{
		ID:          uuid.NewString(),
		EventType:   domain.EventViolation,
		MemoryID:    targetID,
		ViolatedBy:  violatingObsID,
		DamageLevel: damage,
		Context:     map[string]any{"condition": condition},
		CreatedAt:   time.Now(),
	}); err != nil {
		return err
	}

	if c.OnCascade != nil {
		c.OnCascade(ctx, targetID, damage)
	}
	return nil
}

func (c *Checker) recordConfirmation(ctx context.Context, targetID, confirmingObsID string) error {
	release, ok, err := c.acquireLock(ctx, targetID)
	if err != nil {
		return err
	}
	if ok {
		defer release()
	}

	target, err := c.Store.GetMemory(ctx, targetID)
	if err != nil {
		return err
	}

	target.Confirmations++
	target.TimesTested++

	autoConfirm := target.IsTimeBound()
	if autoConfirm {
		target.State = domain.StateConfirmed
	}

	if target.State != domain.StateActive {
		if err := c.Store.DeleteConditionVectors(ctx, target.ID); err != nil {
			return err
		}
	}

	if _, err := c.Store.UpsertEdge(ctx, &domain.Edge{
		Source:   confirmingObsID,
		Target:   targetID,
		Type:     domain.EdgeConfirmedBy,
		Strength: 1.0,
	}); err != nil {
		return err
	}

	if err := c.Store.PutMemory(ctx, target); err != nil {
		return err
	}

	if autoConfirm {
		if err := c.Store.AppendEvent(ctx, &domain.MemoryEvent{
			ID:        uuid.NewString(),
			EventType: domain.EventPredictionConfirmed,
			MemoryID:  targetID,
			CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) acquireLock(ctx context.Context, memoryID string) (func(), bool, error) {
	ok, release, err := c.Store.TryAdvisoryLock(ctx, "exposure:"+memoryID)
	if err != nil {
		return nil, false, err
	}
	return release, ok, nil
}
