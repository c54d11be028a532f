package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/voice-faq/internal/domain/faq"
	apperrors "github.com/yanqian/voice-faq/pkg/errors"
)

const queryRequired = "Query is required"

// Answerer is the slice of the answer pipeline the search endpoint needs.
type Answerer interface {
	Answer(ctx context.Context, req faq.Request) (faq.Response, error)
}

// SearchHandler serves the answer pipeline over HTTP.
type SearchHandler struct {
	svc    Answerer
	logger *slog.Logger
}

// NewSearchHandler constructs the search endpoint handler.
func NewSearchHandler(svc Answerer, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{svc: svc, logger: logger.With("component", "http.search")}
}

type searchRequest struct {
	Query any `json:"query"`
}

// Search answers one FAQ query. Malformed bodies and non-string queries read as a missing query.
func (h *SearchHandler) Search(c *gin.Context) {
	var body searchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidRequest, queryRequired, err))
		return
	}
	query, ok := body.Query.(string)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidRequest, queryRequired, nil))
		return
	}

	resp, err := h.svc.Answer(c.Request.Context(), faq.Request{Query: query})
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, resp)
}
