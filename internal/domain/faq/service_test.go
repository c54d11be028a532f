package faq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/voice-faq/internal/infra/llm/chatgpt"
	apperrors "github.com/yanqian/voice-faq/pkg/errors"
)

type stubChatClient struct {
	embedCalls      int
	completionCalls int
	embedErr        error
	completionErr   error
	answer          string
	lastCompletion  chatgpt.ChatCompletionRequest
	lastEmbedding   chatgpt.EmbeddingRequest
}

func (s *stubChatClient) CreateEmbedding(_ context.Context, req chatgpt.EmbeddingRequest) (chatgpt.EmbeddingResponse, error) {
	s.embedCalls++
	s.lastEmbedding = req
	if s.embedErr != nil {
		return chatgpt.EmbeddingResponse{}, s.embedErr
	}
	var resp chatgpt.EmbeddingResponse
	resp.Data = append(resp.Data, struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}{Embedding: []float32{0.1, 0.2, 0.3}})
	return resp, nil
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req chatgpt.ChatCompletionRequest) (chatgpt.ChatCompletionResponse, error) {
	s.completionCalls++
	s.lastCompletion = req
	if s.completionErr != nil {
		return chatgpt.ChatCompletionResponse{}, s.completionErr
	}
	var resp chatgpt.ChatCompletionResponse
	resp.Choices = append(resp.Choices, struct {
		Message chatgpt.Message `json:"message"`
	}{Message: chatgpt.Message{Role: "assistant", Content: s.answer}})
	return resp, nil
}

type stubStore struct {
	calls   int
	lastK   int
	matches []Match
	err     error
}

func (s *stubStore) Query(_ context.Context, _ []float32, topK int) ([]Match, error) {
	s.calls++
	s.lastK = topK
	if s.err != nil {
		return nil, s.err
	}
	return s.matches, nil
}

func newTestService(store KnowledgeStore, client ChatClient) Service {
	return NewService(Config{
		Model:          "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		Temperature:    0.7,
		Prompt:         "You are a support assistant.",
		FallbackAnswer: "fallback text",
		TopK:           3,
		MaxAnswerWords: 150,
	}, store, client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func match(id, question string, score float64) Match {
	return Match{ID: id, Score: score, Metadata: Metadata{
		Section:        "Payments",
		Question:       question,
		Answer:         "answer for " + question,
		EmbeddingModel: "text-embedding-3-small",
	}}
}

func TestAnswerRejectsBlankQuery(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n"} {
		client := &stubChatClient{}
		store := &stubStore{}
		_, err := newTestService(store, client).Answer(context.Background(), Request{Query: q})
		require.Error(t, err)
		require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidRequest))
		require.Equal(t, "Query is required", apperrors.MessageOf(err))
		require.Zero(t, client.embedCalls)
		require.Zero(t, store.calls)
		require.Zero(t, client.completionCalls)
	}
}

func TestAnswerGroundsCompletionOnMatches(t *testing.T) {
	client := &stubChatClient{answer: "  You can pay online.  "}
	store := &stubStore{matches: []Match{
		match("a", "How do I make a payment?", 0.92),
		match("b", "When is my payment due?", 0.81),
	}}

	resp, err := newTestService(store, client).Answer(context.Background(), Request{Query: "  How do I make a payment?  "})
	require.NoError(t, err)
	require.Equal(t, 1, client.embedCalls)
	require.Equal(t, 1, client.completionCalls)
	require.Equal(t, 3, store.lastK)
	require.Equal(t, "text-embedding-3-small", client.lastEmbedding.Model)
	require.Equal(t, "How do I make a payment?", client.lastEmbedding.Input)

	require.Equal(t, "You can pay online.", resp.Answer)
	require.Equal(t, "How do I make a payment?", resp.Query)
	require.Len(t, resp.Sources, 2)
	require.Equal(t, "How do I make a payment?", resp.Sources[0].Question)
	require.Equal(t, "Payments", resp.Sources[0].Section)
	require.Equal(t, resp.Sources[0].Score, resp.Confidence)
	require.Greater(t, resp.Confidence, 0.0)

	msgs := client.lastCompletion.Messages
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].Role)
	require.Contains(t, msgs[0].Content, "Q: How do I make a payment?\nA: answer for How do I make a payment?\n\nQ: When is my payment due?")
	require.Equal(t, "user", msgs[1].Role)
	require.Equal(t, "How do I make a payment?", msgs[1].Content)
	require.Equal(t, float32(0.7), client.lastCompletion.Temperature)
}

func TestAnswerTruncatesToTopK(t *testing.T) {
	client := &stubChatClient{answer: "ok"}
	store := &stubStore{matches: []Match{
		match("a", "q1", 0.9), match("b", "q2", 0.8), match("c", "q3", 0.7), match("d", "q4", 0.6),
	}}
	resp, err := newTestService(store, client).Answer(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	require.Len(t, resp.Sources, 3)
	require.Equal(t, []string{"q1", "q2", "q3"}, []string{resp.Sources[0].Question, resp.Sources[1].Question, resp.Sources[2].Question})
}

func TestAnswerZeroMatchesReturnsFallback(t *testing.T) {
	client := &stubChatClient{answer: "unused"}
	store := &stubStore{}

	resp, err := newTestService(store, client).Answer(context.Background(), Request{Query: "anything"})
	require.NoError(t, err)
	require.Equal(t, "fallback text", resp.Answer)
	require.Zero(t, resp.Confidence)
	require.NotNil(t, resp.Sources)
	require.Empty(t, resp.Sources)
	require.Equal(t, 1, client.embedCalls)
	require.Zero(t, client.completionCalls)
}

func TestAnswerDependencyFailures(t *testing.T) {
	t.Run("embedding", func(t *testing.T) {
		client := &stubChatClient{embedErr: errors.New("boom")}
		store := &stubStore{}
		_, err := newTestService(store, client).Answer(context.Background(), Request{Query: "q"})
		require.True(t, apperrors.IsCode(err, apperrors.CodeDependencyFailure))
		require.Zero(t, store.calls)
		require.Zero(t, client.completionCalls)
	})
	t.Run("store", func(t *testing.T) {
		client := &stubChatClient{}
		store := &stubStore{err: errors.New("index down")}
		_, err := newTestService(store, client).Answer(context.Background(), Request{Query: "q"})
		require.True(t, apperrors.IsCode(err, apperrors.CodeDependencyFailure))
		require.Zero(t, client.completionCalls)
	})
	t.Run("completion", func(t *testing.T) {
		client := &stubChatClient{completionErr: errors.New("timeout")}
		store := &stubStore{matches: []Match{match("a", "q", 0.5)}}
		resp, err := newTestService(store, client).Answer(context.Background(), Request{Query: "q"})
		require.True(t, apperrors.IsCode(err, apperrors.CodeDependencyFailure))
		require.Equal(t, Response{}, resp)
	})
	t.Run("empty completion", func(t *testing.T) {
		client := &stubChatClient{answer: "   "}
		store := &stubStore{matches: []Match{match("a", "q", 0.5)}}
		_, err := newTestService(store, client).Answer(context.Background(), Request{Query: "q"})
		require.True(t, apperrors.IsCode(err, apperrors.CodeDependencyFailure))
	})
}

func TestAnswerIsRepeatable(t *testing.T) {
	client := &stubChatClient{answer: "ok"}
	store := &stubStore{matches: []Match{match("a", "q1", 0.9), match("b", "q2", 0.8)}}
	svc := newTestService(store, client)

	first, err := svc.Answer(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	second, err := svc.Answer(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	require.Equal(t, first.Sources, second.Sources)
	require.Equal(t, 2, client.embedCalls)
}

func TestSearchUsesLimit(t *testing.T) {
	client := &stubChatClient{}
	store := &stubStore{matches: []Match{match("a", "q1", 0.9)}}
	svc := newTestService(store, client)

	matches, err := svc.Search(context.Background(), "q", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, 10, store.lastK)
	require.Zero(t, client.completionCalls)

	_, err = svc.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	require.Equal(t, 3, store.lastK)

	_, err = svc.Search(context.Background(), " ", 5)
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidRequest))
}
