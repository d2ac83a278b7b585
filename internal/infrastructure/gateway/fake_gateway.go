package gateway

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// FakeGateway is a deterministic, in-process Gateway for unit tests: no
// network calls, stable output for the same input every run.
type FakeGateway struct {
	// JudgeFunc overrides the default heuristic verdict when set, letting a
	// test script exact contradiction/confirmation sequences.
	JudgeFunc func(reference, candidate, relation string) (*JudgeVerdict, error)
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

// Embed hashes each text into a small deterministic vector. Two identical
// texts always produce an identical vector, and the hash is sensitive
// enough to word overlap that near-duplicate phrasing lands close in
// cosine distance without needing a real embedding model in tests.
func (g *FakeGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t, 32)
	}
	return out, nil
}

func (g *FakeGateway) Judge(ctx context.Context, reference, candidate, relation string) (*JudgeVerdict, error) {
	if g.JudgeFunc != nil {
		return g.JudgeFunc(reference, candidate, relation)
	}
	sim := cosineSim(hashEmbed(reference, 32), hashEmbed(candidate, 32))
	switch {
	case sim > 0.95:
		return &JudgeVerdict{Relation: "duplicate", Confidence: sim, Reasoning: "near-identical phrasing"}
	case sim > 0.6:
		return &JudgeVerdict{Relation: "confirms", Confidence: sim, Reasoning: "high lexical overlap"}
	default:
		return &JudgeVerdict{Relation: "unrelated", Confidence: 1 - sim, Reasoning: "low lexical overlap"}
	}
}

func hashEmbed(text string, dims int) []float32 {
	words := strings.Fields(strings.ToLower(text))
	vec := make([]float32, dims)
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		idx := int(h.Sum32()) % dims
		if idx < 0 {
			idx += dims
		}
		vec[idx] += 1
	}
	return vec
}

func cosineSim(a, b []float32) float64 {
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
