package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/beliefgraph/core/internal/domain/errors"
	"github.com/google/uuid"
)

// MemoryStore is an in-process, map-backed domain.Storage implementation
// for unit tests and the standalone/demo path — no external services
// required.
type MemoryStore struct {
	mu      sync.RWMutex
	memories map[string]*domain.Memory
	edges    map[edgeKey]*domain.Edge
	events   []*domain.MemoryEvent

	content *memVectorIndex
	invalid *memVectorIndex
	confirm *memVectorIndex

	locks map[string]bool
}

type edgeKey struct {
	source, target string
	edgeType        domain.EdgeType
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		memories: make(map[string]*domain.Memory),
		edges:    make(map[edgeKey]*domain.Edge),
		content:  newMemVectorIndex(),
		invalid:  newMemVectorIndex(),
		confirm:  newMemVectorIndex(),
		locks:    make(map[string]bool),
	}
}

func (s *MemoryStore) ContentIndex() domain.VectorIndex    { return s.content }
func (s *MemoryStore) InvalidatesIndex() domain.VectorIndex { return s.invalid }
func (s *MemoryStore) ConfirmsIndex() domain.VectorIndex    { return s.confirm }

func (s *MemoryStore) GetMemory(ctx context.Context, id string) (*domain.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, errors.NewNotFoundError("memory", id)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) PutMemory(ctx context.Context, m *domain.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	cp := *m
	s.memories[m.ID] = &cp
	return nil
}

func (s *MemoryStore) ListByIDs(ctx context.Context, ids []string) ([]*domain.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.memories[id]; ok {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListEdgesIncident(ctx context.Context, ids []string, types []domain.EdgeType, minStrength float64) ([]*domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	typeSet := make(map[domain.EdgeType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	var out []*domain.Edge
	for _, e := range s.edges {
		if e.Strength < minStrength {
			continue
		}
		if len(typeSet) > 0 && !typeSet[e.Type] {
			continue
		}
		if idSet[e.Source] || idSet[e.Target] {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertEdge(ctx context.Context, e *domain.Edge) (*domain.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := edgeKey{e.Source, e.Target, e.Type}
	now := time.Now()
	if existing, ok := s.edges[key]; ok {
		existing.Strength = domain.MergeStrength(existing.Strength, e.Strength)
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}
	e.CreatedAt, e.UpdatedAt = now, now
	cp := *e
	s.edges[key] = &cp
	return &cp, nil
}

// ListActiveMemoryIDs returns every non-retracted memory id.
func (s *MemoryStore) ListActiveMemoryIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, m := range s.memories {
		if !m.Retracted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListAllEdges returns every edge of the given types at or above
// minStrength, independent of which nodes they touch.
func (s *MemoryStore) ListAllEdges(ctx context.Context, types []domain.EdgeType, minStrength float64) ([]*domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	typeSet := make(map[domain.EdgeType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	var out []*domain.Edge
	for _, e := range s.edges {
		if e.Strength < minStrength {
			continue
		}
		if len(typeSet) > 0 && !typeSet[e.Type] {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) DeleteConditionVectors(ctx context.Context, memoryID string) error {
	for _, idx := range []*memVectorIndex{s.invalid, s.confirm} {
		idx.mu.Lock()
		for id, r := range idx.records {
			if owner, _ := r.Metadata["memory_id"].(string); owner == memoryID {
				delete(idx.records, id)
			}
		}
		idx.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev *domain.MemoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	cp := *ev
	s.events = append(s.events, &cp)
	return nil
}

// GetEvent fetches a single event by id, the lookup ApplyCascade uses to
// check an event's dispatched bit before committing its action again.
func (s *MemoryStore) GetEvent(ctx context.Context, eventID string) (*domain.MemoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.ID == eventID {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, errors.NewNotFoundError("event", eventID)
}

func (s *MemoryStore) ClaimDueEvents(ctx context.Context, sessionID string, limit int) ([]*domain.MemoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*domain.MemoryEvent
	for _, ev := range s.events {
		if ev.SessionID == sessionID && !ev.Dispatched {
			pending = append(pending, ev)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	now := time.Now()
	out := make([]*domain.MemoryEvent, len(pending))
	for i, ev := range pending {
		ev.Dispatched = true
		ev.DispatchedAt = &now
		cp := *ev
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) MarkDispatched(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, ev := range s.events {
		if ev.ID == eventID {
			ev.Dispatched = true
			ev.DispatchedAt = &now
			return nil
		}
	}
	return errors.NewNotFoundError("event", eventID)
}

// TryAdvisoryLock is an in-process mutex-backed stand-in for the real
// store's Postgres advisory lock — sufficient within a single process,
// which is all the in-memory store is used for.
func (s *MemoryStore) TryAdvisoryLock(ctx context.Context, name string) (bool, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[name] {
		return false, nil, nil
	}
	s.locks[name] = true
	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.locks, name)
	}
	return true, release, nil
}

// memVectorIndex is an in-process domain.VectorIndex backed by a plain
// map, ranked by the same cosine similarity the Postgres-backed
// tableVectorIndex uses.
type memVectorIndex struct {
	mu      sync.RWMutex
	records map[string]domain.VectorRecord
}

func newMemVectorIndex() *memVectorIndex {
	return &memVectorIndex{records: make(map[string]domain.VectorRecord)}
}

func (v *memVectorIndex) Upsert(ctx context.Context, batch []domain.VectorRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range batch {
		v.records[r.ID] = r
	}
	return nil
}

func (v *memVectorIndex) Query(ctx context.Context, vec []float32, topK int, filter map[string]any, minScore float64) ([]domain.VectorMatch, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	matches := make([]domain.VectorMatch, 0, len(v.records))
	for _, r := range v.records {
		if !matchesFilter(r.Metadata, filter) {
			continue
		}
		score := cosineSimilarity(vec, r.Vector)
		if score < minScore {
			continue
		}
		matches = append(matches, domain.VectorMatch{ID: r.ID, Score: score, Metadata: r.Metadata})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (v *memVectorIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		delete(v.records, id)
	}
	return nil
}
