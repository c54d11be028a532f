package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/voice-faq/internal/domain/faq"
	"github.com/yanqian/voice-faq/internal/domain/voice"
	"github.com/yanqian/voice-faq/internal/infra/config"
	"github.com/yanqian/voice-faq/internal/infra/knowledge"
	"github.com/yanqian/voice-faq/internal/infra/llm/chatgpt"
	"github.com/yanqian/voice-faq/internal/infra/ratelimit"
	"github.com/yanqian/voice-faq/internal/infra/voicesession"
	httpiface "github.com/yanqian/voice-faq/internal/interface/http"
)

const valkeyPrefix = "voicefaq"

func provideChatGPTClient(cfg *config.Config) (*chatgpt.Client, error) {
	return chatgpt.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
}

func provideFAQConfig(cfg *config.Config) faq.Config {
	return faq.Config{
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Prompt:         cfg.FAQ.Prompt,
		FallbackAnswer: cfg.FAQ.FallbackAnswer,
		TopK:           cfg.FAQ.TopK,
		MaxAnswerWords: cfg.FAQ.MaxAnswerWords,
	}
}

func provideKnowledgeStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (knowledge.Store, func(), error) {
	store, err := knowledge.Open(ctx, cfg.Knowledge, cfg.LLM.EmbeddingDimensions, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("knowledge store ready", "backend", cfg.Knowledge.Backend)
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("knowledge store close failed", "error", err)
		}
	}
	return store, cleanup, nil
}

func provideKnowledgeReader(store knowledge.Store) faq.KnowledgeStore {
	return store
}

// provideValkeyClient returns a nil client when no component is configured to use valkey.
func provideValkeyClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (valkey.Client, func(), error) {
	usesValkey := cfg.Voice.SessionBackend == config.BackendValkey ||
		(cfg.HTTP.RateLimit.Enabled && cfg.HTTP.RateLimit.Backend == config.BackendValkey)
	if !usesValkey {
		return nil, func() {}, nil
	}
	opt, err := buildValkeyOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info("valkey client enabled", "addr", cfg.Valkey.Addr)
	return client, client.Close, nil
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(cfg.Valkey.Addr, "://") {
		opt, err = valkey.ParseURL(cfg.Valkey.Addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{cfg.Valkey.Addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	return opt, nil
}

func provideVoiceRepository(cfg *config.Config, client valkey.Client) voice.Repository {
	if cfg.Voice.SessionBackend == config.BackendValkey {
		return voicesession.NewValkeyRepository(client, valkeyPrefix, cfg.Voice.SessionTTL)
	}
	return voicesession.NewMemoryRepository(cfg.Voice.SessionTTL)
}

func provideLimiter(cfg *config.Config, client valkey.Client) ratelimit.Limiter {
	rl := cfg.HTTP.RateLimit
	if !rl.Enabled || rl.RequestsPerMinute <= 0 {
		return nil
	}
	if rl.Backend == config.BackendValkey {
		return ratelimit.NewFixedWindow(client, valkeyPrefix, rl.RequestsPerMinute)
	}
	return ratelimit.NewTokenBucket(rl.RequestsPerMinute, rl.Burst)
}

func provideVoiceService(cfg *config.Config, svc faq.Service, repo voice.Repository, logger *slog.Logger) *voice.Service {
	return voice.NewService(voice.Config{ToolName: cfg.Voice.ToolName}, svc, repo, logger)
}

func provideSearchHandler(svc faq.Service, logger *slog.Logger) *httpiface.SearchHandler {
	return httpiface.NewSearchHandler(svc, logger)
}

func provideVoiceHandler(svc *voice.Service, logger *slog.Logger) *httpiface.VoiceHandler {
	return httpiface.NewVoiceHandler(svc, logger)
}
