package faq

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/yanqian/voice-faq/internal/infra/llm/chatgpt"
	apperrors "github.com/yanqian/voice-faq/pkg/errors"
	"github.com/yanqian/voice-faq/pkg/metrics"
)

// Pipeline steps reported in logs and metrics.
const (
	StepEmbed    = "embed"
	StepRetrieve = "retrieve"
	StepGenerate = "generate"
)

// Service exposes the answer pipeline.
type Service interface {
	Answer(ctx context.Context, req Request) (Response, error)
	Search(ctx context.Context, query string, limit int) ([]Match, error)
}

// ChatClient is the subset of the ChatGPT client used by the pipeline.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req chatgpt.ChatCompletionRequest) (chatgpt.ChatCompletionResponse, error)
	CreateEmbedding(ctx context.Context, req chatgpt.EmbeddingRequest) (chatgpt.EmbeddingResponse, error)
}

type service struct {
	cfg    Config
	store  KnowledgeStore
	client ChatClient
	logger *slog.Logger
}

// NewService wires up the FAQ domain.
func NewService(cfg Config, store KnowledgeStore, client ChatClient, logger *slog.Logger) Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.MaxAnswerWords <= 0 {
		cfg.MaxAnswerWords = 150
	}
	return &service{
		cfg:    cfg,
		store:  store,
		client: client,
		logger: logger.With("component", "faq.service"),
	}
}

func (s *service) Answer(ctx context.Context, req Request) (Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return Response{}, errQueryRequired()
	}

	matches, err := s.retrieve(ctx, query, s.cfg.TopK)
	if err != nil {
		metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeFailed).Inc()
		return Response{}, err
	}

	if len(matches) == 0 {
		metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeFallback).Inc()
		s.logger.Info("no knowledge matches, returning fallback", "query", query)
		return Response{
			Answer:     s.cfg.FallbackAnswer,
			Confidence: 0,
			Sources:    []Source{},
			Query:      query,
		}, nil
	}

	answer, err := s.generate(ctx, query, matches)
	if err != nil {
		metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeFailed).Inc()
		return Response{}, err
	}

	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, Source{
			Question: m.Metadata.Question,
			Section:  m.Metadata.Section,
			Score:    m.Score,
		})
	}
	metrics.PipelineOutcomes.WithLabelValues(metrics.OutcomeAnswered).Inc()
	return Response{
		Answer:     answer,
		Confidence: sources[0].Score,
		Sources:    sources,
		Query:      query,
	}, nil
}

func (s *service) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errQueryRequired()
	}
	if limit <= 0 {
		limit = s.cfg.TopK
	}
	return s.retrieve(ctx, query, limit)
}

func (s *service) retrieve(ctx context.Context, query string, topK int) ([]Match, error) {
	embedding, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, s.dependencyFailure(StepEmbed, "embedding failed", err)
	}

	start := time.Now()
	matches, err := s.store.Query(ctx, embedding, topK)
	metrics.PipelineStepDuration.WithLabelValues(StepRetrieve).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.dependencyFailure(StepRetrieve, "knowledge store query failed", err)
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	s.checkProvenance(matches)
	return matches, nil
}

func (s *service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	start := time.Now()
	defer func() {
		metrics.PipelineStepDuration.WithLabelValues(StepEmbed).Observe(time.Since(start).Seconds())
	}()

	resp, err := s.client.CreateEmbedding(ctx, chatgpt.EmbeddingRequest{
		Model: s.cfg.EmbeddingModel,
		Input: query,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("embedding response empty")
	}
	vector := make([]float32, len(resp.Data[0].Embedding))
	copy(vector, resp.Data[0].Embedding)
	return vector, nil
}

func (s *service) generate(ctx context.Context, query string, matches []Match) (string, error) {
	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, chatgpt.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []chatgpt.Message{
			{Role: "system", Content: buildSystemPrompt(s.cfg.Prompt, buildContext(matches), s.cfg.MaxAnswerWords)},
			{Role: "user", Content: query},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	metrics.PipelineStepDuration.WithLabelValues(StepGenerate).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", s.dependencyFailure(StepGenerate, "chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", s.dependencyFailure(StepGenerate, "chat completion returned no choices", errors.New("empty choices"))
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", s.dependencyFailure(StepGenerate, "chat completion response empty", errors.New("empty content"))
	}
	return answer, nil
}

// checkProvenance flags matches embedded with a different model. They are still served.
func (s *service) checkProvenance(matches []Match) {
	for _, m := range matches {
		model := m.Metadata.EmbeddingModel
		if model != "" && model != s.cfg.EmbeddingModel {
			s.logger.Warn("knowledge entry embedded with a different model",
				"id", m.ID, "entryModel", model, "queryModel", s.cfg.EmbeddingModel)
		}
	}
}

func (s *service) dependencyFailure(step, message string, err error) error {
	s.logger.Error("answer pipeline step failed", "step", step, "error", err)
	return apperrors.Wrap(apperrors.CodeDependencyFailure, message, err)
}

func errQueryRequired() error {
	return apperrors.Wrap(apperrors.CodeInvalidRequest, "Query is required", nil)
}
