package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/voice-faq/internal/domain/voice"
	apperrors "github.com/yanqian/voice-faq/pkg/errors"
)

// VoiceService handles platform webhooks and exposes session snapshots.
type VoiceService interface {
	Handle(ctx context.Context, env voice.Envelope) (voice.Reply, error)
	Session(ctx context.Context, id string) (voice.Session, error)
}

var _ VoiceService = (*voice.Service)(nil)

// VoiceHandler serves the voice platform webhook.
type VoiceHandler struct {
	svc    VoiceService
	logger *slog.Logger
}

// NewVoiceHandler constructs the webhook handler.
func NewVoiceHandler(svc VoiceService, logger *slog.Logger) *VoiceHandler {
	return &VoiceHandler{svc: svc, logger: logger.With("component", "http.voice")}
}

// Events accepts one platform message. Replies without tool results are a bare acknowledgement.
func (h *VoiceHandler) Events(c *gin.Context) {
	var env voice.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidRequest, "Invalid webhook payload", err))
		return
	}
	reply, err := h.svc.Handle(c.Request.Context(), env)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, reply)
}

// GetSession returns the stored snapshot for a call id.
func (h *VoiceHandler) GetSession(c *gin.Context) {
	session, err := h.svc.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, session)
}
