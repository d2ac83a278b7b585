// Package storage implements domain.Storage over a Postgres connection via
// uptrace/bun, and a plain in-memory map-backed variant for tests and the
// standalone/demo path.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/beliefgraph/core/internal/domain/errors"
	"github.com/beliefgraph/core/internal/infrastructure/gateway"
	"github.com/beliefgraph/core/internal/infrastructure/storage/models"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// maxBindParams caps the bound parameters a single query issues, well under
// PostgreSQL's own limit; callers size their ID chunks so the IDs plus the
// query's other parameters stay within it.
const maxBindParams = 95

// storageRetryPolicy retries a transient DB error twice with a flat 100ms
// backoff before the caller gives up and surfaces a StorageTransientError.
var storageRetryPolicy = gateway.RetryPolicy{
	MaxAttempts:  2,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     100 * time.Millisecond,
	Multiplier:   1,
	Jitter:       false,
}

// BunStore is the Postgres-backed domain.Storage implementation.
type BunStore struct {
	db      *bun.DB
	content *tableVectorIndex
	invalid *tableVectorIndex
	confirm *tableVectorIndex
}

// NewBunStore opens a connection pool against dsn and wires the three
// logical vector indexes over dedicated tables in the same database.
func NewBunStore(dsn string, debug bool) *BunStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return &BunStore{
		db:      db,
		content: &tableVectorIndex{db: db, table: "content_vectors"},
		invalid: &tableVectorIndex{db: db, table: "invalidates_vectors"},
		confirm: &tableVectorIndex{db: db, table: "confirms_vectors"},
	}
}

// InitSchema creates every table this store needs if it does not already
// exist. It does not manage migrations beyond that.
func (s *BunStore) InitSchema(ctx context.Context) error {
	tables := []any{
		(*models.MemoryModel)(nil),
		(*models.EdgeModel)(nil),
		(*models.EventModel)(nil),
	}
	for _, t := range tables {
		if _, err := s.db.NewCreateTable().Model(t).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	for _, idx := range []*tableVectorIndex{s.content, s.invalid, s.confirm} {
		if _, err := s.db.NewCreateTable().
			Model((*models.VectorModel)(nil)).
			ModelTableExpr(idx.table).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create vector table %s: %w", idx.table, err)
		}
	}
	return nil
}

func (s *BunStore) ContentIndex() domain.VectorIndex    { return s.content }
func (s *BunStore) InvalidatesIndex() domain.VectorIndex { return s.invalid }
func (s *BunStore) ConfirmsIndex() domain.VectorIndex    { return s.confirm }

// Close releases the underlying connection pool.
func (s *BunStore) Close() error { return s.db.DB.Close() }

func (s *BunStore) GetMemory(ctx context.Context, id string) (*domain.Memory, error) {
	m := new(models.MemoryModel)
	notFound := false
	err := gateway.WithRetry(ctx, storageRetryPolicy, func() error {
		err := s.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
		if err == sql.ErrNoRows {
			notFound = true
			return nil
		}
		return err
	})
	if notFound {
		return nil, errors.NewNotFoundError("memory", id)
	}
	if err != nil {
		return nil, errors.NewStorageTransientError("get_memory", err)
	}
	return m.ToDomain(), nil
}

func (s *BunStore) PutMemory(ctx context.Context, m *domain.Memory) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := models.NewMemoryModel(m)
	err := gateway.WithRetry(ctx, storageRetryPolicy, func() error {
		_, err := s.db.NewInsert().
			Model(row).
			On("CONFLICT (id) DO UPDATE").
			Exec(ctx)
		return err
	})
	if err != nil {
		return errors.NewStorageTransientError("put_memory", err)
	}
	return nil
}

// ListByIDs fetches memories in chunks of at most maxBindParams IDs per
// query, the IN-clause chunking every multi-ID lookup in this store needs.
func (s *BunStore) ListByIDs(ctx context.Context, ids []string) ([]*domain.Memory, error) {
	byID := make(map[string]*domain.Memory, len(ids))
	for _, chunk := range chunkStrings(ids, maxBindParams) {
		var rows []*models.MemoryModel
		err := gateway.WithRetry(ctx, storageRetryPolicy, func() error {
			return s.db.NewSelect().Model(&rows).Where("id IN (?)", bun.In(chunk)).Scan(ctx)
		})
		if err != nil {
			return nil, errors.NewStorageTransientError("list_by_ids", err)
		}
		for _, r := range rows {
			byID[r.ID] = r.ToDomain()
		}
	}
	// Preserve input order and omit ids with no matching row.
	out := make([]*domain.Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *BunStore) ListEdgesIncident(ctx context.Context, ids []string, types []domain.EdgeType, minStrength float64) ([]*domain.Edge, error) {
	out := make([]*domain.Edge, 0, len(ids))
	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = string(t)
	}
	// Each id is bound twice (source and target), plus minStrength and the types.
	for _, chunk := range chunkStrings(ids, (maxBindParams-1-len(typeStrs))/2) {
		var rows []*models.EdgeModel
		err := gateway.WithRetry(ctx, storageRetryPolicy, func() error {
			q := s.db.NewSelect().
				Model((*models.EdgeModel)(nil)).
				Where("(source IN (?) OR target IN (?))", bun.In(chunk), bun.In(chunk)).
				Where("strength >= ?", minStrength)
			if len(typeStrs) > 0 {
				q = q.Where("type IN (?)", bun.In(typeStrs))
			}
			return q.Scan(ctx, &rows)
		})
		if err != nil {
			return nil, errors.NewStorageTransientError("list_edges_incident", err)
		}
		for _, r := range rows {
			out = append(out, r.ToDomain())
		}
	}
	return out, nil
}

// ListActiveMemoryIDs returns every non-retracted memory id.
func (s *BunStore) ListActiveMemoryIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := gateway.WithRetry(ctx, storageRetryPolicy, func() error {
		return s.db.NewSelect().
			Model((*models.MemoryModel)(nil)).
			Column("id").
			Where("retracted = false").
			Scan(ctx, &ids)
	})
	if err != nil {
		return nil, errors.NewStorageTransientError("list_active_memory_ids", err)
	}
	return ids, nil
}

// ListAllEdges returns every edge of the given types at or above
// minStrength, independent of which nodes they touch.
func (s *BunStore) ListAllEdges(ctx context.Context, types []domain.EdgeType, minStrength float64) ([]*domain.Edge, error) {
	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = string(t)
	}
	var rows []*models.EdgeModel
	err := gateway.WithRetry(ctx, storageRetryPolicy, func() error {
		q := s.db.NewSelect().
			Model((*models.EdgeModel)(nil)).
			Where("strength >= ?", minStrength)
		if len(typeStrs) > 0 {
			q = q.Where("type IN (?)", bun.In(typeStrs))
		}
		return q.Scan(ctx, &rows)
	})
	if err != nil {
		return nil, errors.NewStorageTransientError("list_all_edges", err)
	}
	out := make([]*domain.Edge, len(rows))
	for i, r := range rows {
		out[i] = r.ToDomain()
	}
	return out, nil
}

// UpsertEdge merges e.Strength into any existing (source, target, type)
// edge via domain.MergeStrength rather than overwriting it, inside a
// transaction to make the read-then-write atomic.
func (s *BunStore) UpsertEdge(ctx context.Context, e *domain.Edge) (*domain.Edge, error) {
	var merged *domain.Edge
	err := gateway.WithRetry(ctx, storageRetryPolicy, func() error {
		return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			existing := new(models.EdgeModel)
			err := tx.NewSelect().
				Model(existing).
				Where("source = ? AND target = ? AND type = ?", e.Source, e.Target, e.Type).
				Scan(ctx)
			now := time.Now()
			switch err {
			case sql.ErrNoRows:
				e.CreatedAt, e.UpdatedAt = now, now
				row := models.NewEdgeModel(e)
				if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
					return err
				}
				merged = e
				return nil
			case nil:
				newStrength := domain.MergeStrength(existing.Strength, e.Strength)
				_, err := tx.NewUpdate().
					Model(existing).
					Set("strength = ?", newStrength).
					Set("updated_at = ?", now).
					Where("source = ? AND target = ? AND type = ?", e.Source, e.Target, e.Type).
					Exec(ctx)
				if err != nil {
					return err
				}
				existing.Strength = newStrength
				existing.UpdatedAt = now
				merged = existing.ToDomain()
				return nil
			default:
				return err
			}
		})
	})
	if err != nil {
		return nil, errors.NewStorageTransientError("upsert_edge", err)
	}
	return merged, nil
}

func (s *BunStore) DeleteConditionVectors(ctx context.Context, memoryID string) error {
	for _, idx := range []*tableVectorIndex{s.invalid, s.confirm} {
		_, err := s.db.NewDelete().
			Model((*models.VectorModel)(nil)).
			ModelTableExpr(idx.table).
			Where("metadata->>'memory_id' = ?", memoryID).
			Exec(ctx)
		if err != nil {
			return errors.NewStorageTransientError("delete_condition_vectors", err)
		}
	}
	return nil
}

func (s *BunStore) AppendEvent(ctx context.Context, ev *domain.MemoryEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	row := models.NewEventModel(ev)
	err := gateway.WithRetry(ctx, storageRetryPolicy, func() error {
		_, err := s.db.NewInsert().Model(row).Exec(ctx)
		return err
	})
	if err != nil {
		return errors.NewStorageTransientError("append_event", err)
	}
	return nil
}

// GetEvent fetches a single event by id, used by ApplyCascade to check the
// dispatched bit before applying a cascade action a second time.
func (s *BunStore) GetEvent(ctx context.Context, eventID string) (*domain.MemoryEvent, error) {
	ev := new(models.EventModel)
	notFound := false
	err := gateway.WithRetry(ctx, storageRetryPolicy, func() error {
		err := s.db.NewSelect().Model(ev).Where("id = ?", eventID).Scan(ctx)
		if err == sql.ErrNoRows {
			notFound = true
			return nil
		}
		return err
	})
	if notFound {
		return nil, errors.NewNotFoundError("event", eventID)
	}
	if err != nil {
		return nil, errors.NewStorageTransientError("get_event", err)
	}
	return ev.ToDomain(), nil
}

// ClaimDueEvents selects up to limit undispatched events for sessionID in
// creation order and marks them dispatched in the same transaction, giving
// the dispatcher an ordered-per-session claim. A claimed event is not handed
// out again, so it is delivered at most once.
func (s *BunStore) ClaimDueEvents(ctx context.Context, sessionID string, limit int) ([]*domain.MemoryEvent, error) {
	var rows []*models.EventModel
	err := gateway.WithRetry(ctx, storageRetryPolicy, func() error {
		rows = nil
		return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			err := tx.NewSelect().
				Model(&rows).
				Where("session_id = ? AND dispatched = false", sessionID).
				Order("created_at ASC").
				Limit(limit).
				For("UPDATE SKIP LOCKED").
				Scan(ctx)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			ids := make([]string, len(rows))
			for i, r := range rows {
				ids[i] = r.ID
			}
			now := time.Now()
			_, err = tx.NewUpdate().
				Model((*models.EventModel)(nil)).
				Set("dispatched = true").
				Set("dispatched_at = ?", now).
				Where("id IN (?)", bun.In(ids)).
				Exec(ctx)
			return err
		})
	})
	if err != nil {
		return nil, errors.NewStorageTransientError("claim_due_events", err)
	}
	out := make([]*domain.MemoryEvent, len(rows))
	for i, r := range rows {
		out[i] = r.ToDomain()
	}
	return out, nil
}

func (s *BunStore) MarkDispatched(ctx context.Context, eventID string) error {
	now := time.Now()
	err := gateway.WithRetry(ctx, storageRetryPolicy, func() error {
		_, err := s.db.NewUpdate().
			Model((*models.EventModel)(nil)).
			Set("dispatched = true").
			Set("dispatched_at = ?", now).
			Where("id = ?", eventID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return errors.NewStorageTransientError("mark_dispatched", err)
	}
	return nil
}

// TryAdvisoryLock takes a Postgres session-level advisory lock keyed by the
// low bits of name's FNV hash, the best-effort singleton coordination the
// periodic full-graph propagator and resolution sweep use to avoid running
// concurrently from more than one process. Lock attempts are not retried:
// a transient failure here should surface immediately rather than risk two
// processes both believing they hold the lock.
func (s *BunStore) TryAdvisoryLock(ctx context.Context, name string) (bool, func(), error) {
	key := fnv32(name)
	var locked bool
	if err := s.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(?)", key).Scan(&locked); err != nil {
		return false, nil, errors.NewStorageTransientError("try_advisory_lock", err)
	}
	if !locked {
		return false, nil, nil
	}
	release := func() {
		_, _ = s.db.ExecContext(context.Background(), "SELECT pg_advisory_unlock(?)", key)
	}
	return true, release, nil
}

func fnv32(s string) int64 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return int64(h)
}

func chunkStrings(ids []string, size int) [][]string {
	if size <= 0 {
		size = maxBindParams
	}
	var chunks [][]string
	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}
		chunks = append(chunks, ids[:n])
		ids = ids[n:]
	}
	return chunks
}
