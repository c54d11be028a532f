package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yanqian/voice-faq/internal/infra/llm/chatgpt"
)

const defaultMaxBatchTokens = 200_000

// Client is the embeddings half of the ChatGPT client.
type Client interface {
	CreateEmbedding(ctx context.Context, req chatgpt.EmbeddingRequest) (chatgpt.EmbeddingResponse, error)
}

// ChatGPTEmbedder calls the OpenAI-compatible embeddings API, splitting requests by token budget.
type ChatGPTEmbedder struct {
	client         Client
	model          string
	maxBatchTokens int
	countTokens    TokenCounter
	logger         *slog.Logger
}

// NewChatGPTEmbedder constructs an embedder backed by the ChatGPT client.
func NewChatGPTEmbedder(client Client, model string, maxBatchTokens int, counter TokenCounter, logger *slog.Logger) *ChatGPTEmbedder {
	if maxBatchTokens <= 0 {
		maxBatchTokens = defaultMaxBatchTokens
	}
	if counter == nil {
		counter = EstimateTokens
	}
	return &ChatGPTEmbedder{
		client:         client,
		model:          strings.TrimSpace(model),
		maxBatchTokens: maxBatchTokens,
		countTokens:    counter,
		logger:         logger.With("component", "embedder.chatgpt"),
	}
}

// Model reports the embedding model recorded as provenance.
func (e *ChatGPTEmbedder) Model() string { return e.model }

// Embed requests embeddings for texts. Output order matches input order.
func (e *ChatGPTEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	var (
		batch       []string
		batchTokens int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		resp, err := e.client.CreateEmbedding(ctx, chatgpt.EmbeddingRequest{Model: e.model, Input: batch})
		if err != nil {
			return fmt.Errorf("create embedding: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return fmt.Errorf("embedding result count mismatch: expected %d got %d", len(batch), len(resp.Data))
		}
		ordered := make([][]float32, len(batch))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(batch) || ordered[item.Index] != nil {
				return fmt.Errorf("embedding result has invalid index %d", item.Index)
			}
			vec := make([]float32, len(item.Embedding))
			copy(vec, item.Embedding)
			ordered[item.Index] = vec
		}
		out = append(out, ordered...)
		batch = nil
		batchTokens = 0
		return nil
	}

	for _, text := range texts {
		tokens := e.countTokens(text)
		if tokens > e.maxBatchTokens {
			return nil, fmt.Errorf("text too large for embedding request: tokens=%d", tokens)
		}
		if batchTokens+tokens > e.maxBatchTokens && len(batch) > 0 {
			e.logger.Debug("embedding batch split on token budget", "texts", len(batch), "tokens", batchTokens)
			if err := flush(); err != nil {
				return nil, err
			}
		}
		batch = append(batch, text)
		batchTokens += tokens
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}
