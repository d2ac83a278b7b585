package ingest

import (
	"strings"
	"time"

	"github.com/beliefgraph/core/internal/domain"
	beliefgraphErrors "github.com/beliefgraph/core/internal/domain/errors"
	"github.com/go-playground/validator/v10"
)

// Request is the ingestion request DTO. Struct tags catch shape problems
// (content length, source enum membership, URL and list-entry shape) before the
// ordered precondition checks below enforce the semantic rules.
type Request struct {
	Content          string     `validate:"required,max=10000"`
	Source           string     `validate:"omitempty,oneof=market news earnings email human tool"`
	SourceURL        string     `validate:"omitempty,url"`
	DerivedFrom      []string   `validate:"omitempty,dive,required"`
	Assumes          []string   `validate:"omitempty,dive,required"`
	InvalidatesIf    []string   `validate:"omitempty,dive,required"`
	ConfirmsIf       []string   `validate:"omitempty,dive,required"`
	OutcomeCondition string     `validate:"omitempty"`
	ResolvesBy       *time.Time `validate:"omitempty"`
	Tags             []string   `validate:"omitempty,dive,required"`
	SessionID        string     `validate:"required"`
	RequestID        string     `validate:"required"`
}

var structValidator = validator.New()

// Preconditions runs the ordered semantic checks, returning the first
// failure. existsAndNotRetracted resolves whether a derived_from id exists
// and is not retracted, delegated to the caller so this package doesn't
// depend on storage directly.
func Preconditions(req *Request, now time.Time, existsAndNotRetracted func(id string) (bool, error)) error {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return beliefgraphErrors.NewValidationError("content", "must be non-empty")
	}
	if len(content) > 10000 {
		return beliefgraphErrors.NewValidationError("content", "exceeds 10000 characters")
	}

	source := strings.ToLower(strings.TrimSpace(req.Source))
	if req.Source != "" && source == "" {
		return beliefgraphErrors.NewValidationError("source", "must be non-empty when present")
	}
	req.Source = source

	if err := structValidator.Struct(req); err != nil {
		return beliefgraphErrors.NewValidationError("request", err.Error())
	}

	if source == "" && len(req.DerivedFrom) == 0 {
		return beliefgraphErrors.NewValidationError("source/derived_from", "at least one of source or derived_from must be present")
	}

	for _, id := range req.DerivedFrom {
		ok, err := existsAndNotRetracted(id)
		if err != nil {
			return err
		}
		if !ok {
			return beliefgraphErrors.NewValidationError("derived_from", "referenced memory does not exist or is retracted: "+id)
		}
	}

	if req.ResolvesBy != nil {
		if req.OutcomeCondition == "" {
			return beliefgraphErrors.NewValidationError("outcome_condition", "required when resolves_by is set")
		}
		if !req.ResolvesBy.After(now) {
			return beliefgraphErrors.NewValidationError("resolves_by", "must be a future instant")
		}
	}

	return nil
}

// Kind infers the memory kind the same way domain.Memory.Kind() does,
// before a Memory struct exists to call it on.
func Kind(req *Request) domain.Kind {
	if req.Source != "" {
		return domain.KindObservation
	}
	if req.ResolvesBy != nil {
		return domain.KindPrediction
	}
	return domain.KindThought
}
