//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/yanqian/voice-faq/internal/bootstrap"
	"github.com/yanqian/voice-faq/internal/domain/faq"
	"github.com/yanqian/voice-faq/internal/infra/config"
	"github.com/yanqian/voice-faq/internal/infra/llm/chatgpt"
	httpiface "github.com/yanqian/voice-faq/internal/interface/http"
	"github.com/yanqian/voice-faq/pkg/logger"
)

func initializeApp(ctx context.Context) (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		logger.New,
		provideFAQConfig,
		provideChatGPTClient,
		provideKnowledgeStore,
		provideKnowledgeReader,
		provideValkeyClient,
		provideVoiceRepository,
		provideLimiter,
		faq.NewService,
		wire.Bind(new(faq.ChatClient), new(*chatgpt.Client)),
		provideVoiceService,
		provideSearchHandler,
		provideVoiceHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}
