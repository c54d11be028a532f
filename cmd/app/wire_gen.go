//go:build !wireinject
// +build !wireinject

// The injector below is maintained by hand in the shape wire emits.
// Keep it in step with the provider set in wire.go.

package main

import (
	"context"

	"github.com/yanqian/voice-faq/internal/bootstrap"
	"github.com/yanqian/voice-faq/internal/domain/faq"
	"github.com/yanqian/voice-faq/internal/infra/config"
	"github.com/yanqian/voice-faq/internal/interface/http"
	"github.com/yanqian/voice-faq/pkg/logger"
)

// Injectors from wire.go:

func initializeApp(ctx context.Context) (*bootstrap.App, func(), error) {
	configConfig, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	slogLogger := logger.New()
	faqConfig := provideFAQConfig(configConfig)
	store, cleanup, err := provideKnowledgeStore(ctx, configConfig, slogLogger)
	if err != nil {
		return nil, nil, err
	}
	knowledgeStore := provideKnowledgeReader(store)
	client, err := provideChatGPTClient(configConfig)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	service := faq.NewService(faqConfig, knowledgeStore, client, slogLogger)
	searchHandler := provideSearchHandler(service, slogLogger)
	valkeyClient, cleanup2, err := provideValkeyClient(ctx, configConfig, slogLogger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	repository := provideVoiceRepository(configConfig, valkeyClient)
	voiceService := provideVoiceService(configConfig, service, repository, slogLogger)
	voiceHandler := provideVoiceHandler(voiceService, slogLogger)
	limiter := provideLimiter(configConfig, valkeyClient)
	server := http.NewRouter(configConfig, searchHandler, voiceHandler, limiter, slogLogger)
	app := bootstrap.NewApp(configConfig, slogLogger, server)
	return app, func() {
		cleanup2()
		cleanup()
	}, nil
}
