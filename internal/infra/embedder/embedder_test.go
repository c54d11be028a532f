package embedder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/voice-faq/internal/infra/llm/chatgpt"
)

type stubClient struct {
	batches [][]string
	reverse bool
	drop    bool
	err     error
}

func (s *stubClient) CreateEmbedding(_ context.Context, req chatgpt.EmbeddingRequest) (chatgpt.EmbeddingResponse, error) {
	if s.err != nil {
		return chatgpt.EmbeddingResponse{}, s.err
	}
	inputs := req.Input.([]string)
	s.batches = append(s.batches, append([]string(nil), inputs...))
	var resp chatgpt.EmbeddingResponse
	for i, text := range inputs {
		if s.drop && i == 0 {
			continue
		}
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{float32(len(text))}, Index: i})
	}
	if s.reverse {
		for i, j := 0, len(resp.Data)-1; i < j; i, j = i+1, j-1 {
			resp.Data[i], resp.Data[j] = resp.Data[j], resp.Data[i]
		}
	}
	return resp, nil
}

func newTestEmbedder(client Client, maxTokens int) *ChatGPTEmbedder {
	return NewChatGPTEmbedder(client, " text-embedding-3-small ", maxTokens, EstimateTokens, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEmbedSplitsOnTokenBudget(t *testing.T) {
	client := &stubClient{}
	e := newTestEmbedder(client, 4)
	require.Equal(t, "text-embedding-3-small", e.Model())

	out, err := e.Embed(context.Background(), []string{"abcd", "ab", "abcdef", "a"})
	require.NoError(t, err)
	require.Equal(t, [][]string{{"abcd", "ab"}, {"abcdef", "a"}}, client.batches)
	require.Equal(t, [][]float32{{4}, {2}, {6}, {1}}, out)
}

func TestEmbedRestoresOrderByIndex(t *testing.T) {
	client := &stubClient{reverse: true}
	out, err := newTestEmbedder(client, 0).Embed(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1}, {3}, {2}}, out)
}

func TestEmbedErrors(t *testing.T) {
	_, err := newTestEmbedder(&stubClient{drop: true}, 0).Embed(context.Background(), []string{"a", "b"})
	require.ErrorContains(t, err, "count mismatch")

	_, err = newTestEmbedder(&stubClient{err: errors.New("down")}, 0).Embed(context.Background(), []string{"a"})
	require.ErrorContains(t, err, "down")

	_, err = newTestEmbedder(&stubClient{}, 2).Embed(context.Background(), []string{strings.Repeat("x", 10)})
	require.ErrorContains(t, err, "too large")

	out, err := newTestEmbedder(&stubClient{}, 0).Embed(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 2, EstimateTokens("abcd"))
	require.Equal(t, 3, EstimateTokens("a b c"))
}

func TestDeterministicEmbedder(t *testing.T) {
	e := NewDeterministicEmbedder(8)
	first, err := e.Embed(context.Background(), []string{"hello", "world", "hello"})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.Len(t, first[0], 8)
	require.Equal(t, first[0], first[2])
	require.NotEqual(t, first[0], first[1])
}
