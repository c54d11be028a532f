package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanqian/voice-faq/internal/infra/config"
	"github.com/yanqian/voice-faq/internal/infra/ratelimit"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, search *SearchHandler, voiceHandler *VoiceHandler, limiter ratelimit.Limiter, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        newEngine(cfg, search, voiceHandler, limiter, logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

func newEngine(cfg *config.Config, search *SearchHandler, voiceHandler *VoiceHandler, limiter ratelimit.Limiter, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger = logger.With("component", "http.router")

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		requestLogger(logger),
		metricsMiddleware(),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		errorHandlingMiddleware(logger),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limited := rateLimitMiddleware(limiter, cfg.Voice.WebhookSecret, logger)
	router.POST("/search", limited, search.Search)

	api := router.Group("/api")
	{
		api.POST("/search", limited, search.Search)

		voiceGroup := api.Group("/voice")
		voiceGroup.POST("/events", webhookAuthMiddleware(cfg.Voice.WebhookSecret), voiceHandler.Events)
		voiceGroup.GET("/sessions/:id", voiceHandler.GetSession)
	}

	return router
}
