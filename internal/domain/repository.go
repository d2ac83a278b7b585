package domain

import "context"

// VectorMatch is a single hit returned by a VectorIndex query.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// VectorRecord is a single vector write into a VectorIndex.
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// VectorIndex is the similarity-search contract left abstract from the
// embedding/storage drivers: one instance each for the content,
// invalidates_if, and confirms_if embedding spaces. Writes are eventually
// consistent with the relational store — a reader may briefly miss a
// just-ingested memory.
type VectorIndex interface {
	Upsert(ctx context.Context, batch []VectorRecord) error
	Query(ctx context.Context, vec []float32, topK int, filter map[string]any, minScore float64) ([]VectorMatch, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// MemoryStore is the relational persistence contract for memories, edges,
// and events. IN-clause bound-parameter chunking is
// an implementation obligation, not part of this interface's shape.
type MemoryStore interface {
	GetMemory(ctx context.Context, id string) (*Memory, error)
	PutMemory(ctx context.Context, m *Memory) error
	ListByIDs(ctx context.Context, ids []string) ([]*Memory, error)

	ListEdgesIncident(ctx context.Context, ids []string, types []EdgeType, minStrength float64) ([]*Edge, error)
	// UpsertEdge merges strength into any existing (source, target, type)
	// edge via MergeStrength rather than overwriting it.
	UpsertEdge(ctx context.Context, e *Edge) (*Edge, error)

	// ListActiveMemoryIDs returns every non-retracted memory id, the seed
	// set the full-graph propagator partitions into connected components.
	ListActiveMemoryIDs(ctx context.Context) ([]string, error)
	// ListAllEdges returns every edge of the given types at or above
	// minStrength, regardless of which nodes they touch.
	ListAllEdges(ctx context.Context, types []EdgeType, minStrength float64) ([]*Edge, error)

	// DeleteConditionVectors removes stale invalidates_if/confirms_if
	// vectors for a memory being retracted or superseded.
	DeleteConditionVectors(ctx context.Context, memoryID string) error

	AppendEvent(ctx context.Context, ev *MemoryEvent) error
	// GetEvent fetches a single event by id, the lookup ApplyCascade uses to
	// check an event's dispatched bit before committing its action again.
	GetEvent(ctx context.Context, eventID string) (*MemoryEvent, error)
	// ClaimDueEvents atomically marks up to limit undispatched events for
	// sessionID as claimed and returns them, the ordered-per-session queue
	// semantics the event dispatcher depends on.
	ClaimDueEvents(ctx context.Context, sessionID string, limit int) ([]*MemoryEvent, error)
	MarkDispatched(ctx context.Context, eventID string) error

	// TryAdvisoryLock attempts to acquire a named singleton lock, returning a release func on success.
	TryAdvisoryLock(ctx context.Context, name string) (bool, func(), error)
}

// Storage is the unified contract the application layer consumes: the
// relational store plus the three logical vector indexes.
type Storage interface {
	MemoryStore

	ContentIndex() VectorIndex
	InvalidatesIndex() VectorIndex
	ConfirmsIndex() VectorIndex
}
