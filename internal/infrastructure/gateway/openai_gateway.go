package gateway

import (
	"context"
	"fmt"

	beliefgraphErrors "github.com/beliefgraph/core/internal/domain/errors"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGateway implements Gateway against the OpenAI API (or any
// OpenAI-compatible endpoint reachable at a configured base URL).
type OpenAIGateway struct {
	client         *openai.Client
	embeddingModel string
	judgeModel     string
	retry          RetryPolicy
}

// NewOpenAIGateway constructs a gateway. baseURL may be empty to use the
// default OpenAI endpoint.
func NewOpenAIGateway(apiKey, baseURL, embeddingModel, judgeModel string) *OpenAIGateway {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGateway{
		client:         openai.NewClientWithConfig(cfg),
		embeddingModel: embeddingModel,
		judgeModel:     judgeModel,
		retry:          DefaultRetryPolicy(),
	}
}

func (g *OpenAIGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp openai.EmbeddingResponse
	err := WithRetry(ctx, g.retry, func() error {
		r, err := g.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: openai.EmbeddingModel(g.embeddingModel),
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, beliefgraphErrors.NewOracleUnavailableError("embed", err)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

const judgeSystemPrompt = `You are a careful fact-checking judge comparing two short statements.
Given a reference statement and a candidate statement, decide whether the candidate
contradicts, confirms, duplicates, or is unrelated to the reference with respect to the
stated relation. Respond with a single JSON object of the form:
{"relation": "contradicts|confirms|duplicate|unrelated", "confidence": 0.0-1.0, "reasoning": "..."}
and nothing else.`

func (g *OpenAIGateway) Judge(ctx context.Context, reference, candidate, relation string) (*JudgeVerdict, error) {
	prompt := fmt.Sprintf(
		"Relation under test: %s\nReference statement: %s\nCandidate statement: %s\n",
		relation, reference, candidate,
	)

	var content string
	err := WithRetry(ctx, g.retry, func() error {
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: g.judgeModel,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("judge returned no choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return nil, beliefgraphErrors.NewOracleUnavailableError("judge", err)
	}

	var verdict JudgeVerdict
	if err := extractJSONObject(content, &verdict); err != nil {
		return nil, beliefgraphErrors.NewOracleUnavailableError("judge", fmt.Errorf("parsing verdict: %w", err))
	}
	return &verdict, nil
}
