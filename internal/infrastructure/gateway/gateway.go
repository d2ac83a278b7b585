// Package gateway is the embedding/judge oracle boundary: the only place
// this module talks to an LLM provider. Everything above this package
// depends on the Gateway interface, never on a concrete provider.
package gateway

import "context"

// JudgeVerdict is the structured answer a judge() call returns for a single
// candidate pair — whether the new content contradicts, confirms, or is
// unrelated to the existing memory's content, plus the judge's own
// confidence in that call.
type JudgeVerdict struct {
	Relation   string  `json:"relation"` // "contradicts" | "confirms" | "duplicate" | "unrelated"
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Gateway is the embedding + judge oracle the ingestion pipeline, exposure
// checker, and deduplication stage call through. Implementations own their
// own retry/backoff and surface exhaustion as an OracleUnavailableError.
type Gateway interface {
	// Embed returns one embedding vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Judge asks whether candidate stands in the given relation to
	// reference ("does candidate contradict/confirm reference?").
	Judge(ctx context.Context, reference, candidate, relation string) (*JudgeVerdict, error)
}
