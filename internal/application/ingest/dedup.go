package ingest

import (
	"context"

	"github.com/beliefgraph/core/internal/domain"
	beliefgraphErrors "github.com/beliefgraph/core/internal/domain/errors"
	"github.com/beliefgraph/core/internal/infrastructure/gateway"
)

// DedupThresholds configures the two-phase duplicate check.
type DedupThresholds struct {
	High       float64 // cosine at/above this is a hard duplicate
	Low        float64 // cosine below this is not considered at all
	Confidence float64 // judge confidence to reject as duplicate
}

// CheckDuplicate runs the cosine + judge two-phase duplicate check against
// the content index. It returns a ConflictError when content is a
// duplicate, nil otherwise.
func CheckDuplicate(ctx context.Context, idx domain.VectorIndex, g gateway.Gateway, content string, embedding []float32, th DedupThresholds) error {
	matches, err := idx.Query(ctx, embedding, 5, nil, th.Low)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	best := matches[0]
	if best.Score >= th.High {
		return beliefgraphErrors.NewConflictError("hard duplicate", best.ID, "", content)
	}

	if best.Score < th.Low {
		return nil
	}

	candidateText, _ := best.Metadata["content"].(string)
	verdict, err := g.Judge(ctx, candidateText, content, "duplicate")
	if err != nil {
		// Oracle unavailable during dedup is not fatal to ingestion; treat
		// as non-duplicate.
		return nil
	}
	if verdict.Relation == "duplicate" && verdict.Confidence >= th.Confidence {
		return beliefgraphErrors.NewConflictError("judge-confirmed duplicate", best.ID, "", content)
	}
	return nil
}
