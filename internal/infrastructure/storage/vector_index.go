package storage

import (
	"context"
	"math"
	"sort"

	"github.com/beliefgraph/core/internal/domain"
	"github.com/beliefgraph/core/internal/domain/errors"
	"github.com/beliefgraph/core/internal/infrastructure/storage/models"
	"github.com/uptrace/bun"
)

// tableVectorIndex implements domain.VectorIndex as a plain table scan:
// every vector in the table is pulled back and ranked by cosine similarity
// in Go. This is the deliberate simplification this store makes in place of
// a dedicated ANN index (pgvector, a vector database) — correct, not fast,
// and swappable behind the same interface once a workload needs the speed.
type tableVectorIndex struct {
	db    *bun.DB
	table string
}

func (v *tableVectorIndex) Upsert(ctx context.Context, batch []domain.VectorRecord) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]*models.VectorModel, len(batch))
	for i, r := range batch {
		rows[i] = &models.VectorModel{ID: r.ID, Vector: r.Vector, Metadata: r.Metadata}
	}
	_, err := v.db.NewInsert().
		Model(&rows).
		ModelTableExpr(v.table).
		On("CONFLICT (id) DO UPDATE").
		Exec(ctx)
	if err != nil {
		return errors.NewStorageTransientError("vector_upsert", err)
	}
	return nil
}

func (v *tableVectorIndex) Query(ctx context.Context, vec []float32, topK int, filter map[string]any, minScore float64) ([]domain.VectorMatch, error) {
	var rows []*models.VectorModel
	err := v.db.NewSelect().
		Model(&rows).
		ModelTableExpr(v.table).
		Scan(ctx)
	if err != nil {
		return nil, errors.NewStorageTransientError("vector_query", err)
	}

	matches := make([]domain.VectorMatch, 0, len(rows))
	for _, r := range rows {
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

func (v *tableVectorIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, chunk := range chunkStrings(ids, maxBindParams) {
		_, err := v.db.NewDelete().
			Model((*models.VectorModel)(nil)).
			ModelTableExpr(v.table).
			Where("id IN (?)", bun.In(chunk)).
			Exec(ctx)
		if err != nil {
			return errors.NewStorageTransientError("vector_delete", err)
		}
	}
	return nil
}

func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
