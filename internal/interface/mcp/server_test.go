package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/voice-faq/internal/domain/faq"
	apperrors "github.com/yanqian/voice-faq/pkg/errors"
)

type stubFAQ struct {
	lastLimit int
	err       error
}

func (s *stubFAQ) Answer(_ context.Context, req faq.Request) (faq.Response, error) {
	if s.err != nil {
		return faq.Response{}, s.err
	}
	return faq.Response{Answer: "Pay online.", Confidence: 0.9, Sources: []faq.Source{{Question: req.Query, Score: 0.9}}, Query: req.Query}, nil
}

func (s *stubFAQ) Search(_ context.Context, query string, limit int) ([]faq.Match, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return []faq.Match{{ID: "faq_1", Score: 0.8, Metadata: faq.Metadata{Section: "Billing", Question: query, Answer: "Pay online."}}}, nil
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func callRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func TestAnswerQuestionReturnsResponseJSON(t *testing.T) {
	result, err := answerQuestion(&stubFAQ{}, testLogger)(context.Background(), callRequest(map[string]any{"query": "How do I pay?"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp faq.Response
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &resp))
	require.Equal(t, "Pay online.", resp.Answer)
	require.Equal(t, "How do I pay?", resp.Query)
}

func TestAnswerQuestionRequiresQuery(t *testing.T) {
	result, err := answerQuestion(&stubFAQ{}, testLogger)(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Equal(t, "Query is required", toolText(t, result))
}

func TestAnswerQuestionHidesDependencyFailure(t *testing.T) {
	svc := &stubFAQ{err: apperrors.Wrap(apperrors.CodeDependencyFailure, "embedding failed", errors.New("timeout"))}
	result, err := answerQuestion(svc, testLogger)(context.Background(), callRequest(map[string]any{"query": "q"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Equal(t, "Internal server error", toolText(t, result))
}

func TestSearchFAQLimit(t *testing.T) {
	svc := &stubFAQ{}
	handler := searchFAQ(svc, testLogger)

	result, err := handler(context.Background(), callRequest(map[string]any{"query": "pay", "limit": float64(5)}))
	require.NoError(t, err)
	require.Equal(t, 5, svc.lastLimit)

	var out []searchResult
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &out))
	require.Len(t, out, 1)
	require.Equal(t, "Billing", out[0].Section)

	_, err = handler(context.Background(), callRequest(map[string]any{"query": "pay", "limit": float64(-1)}))
	require.NoError(t, err)
	require.Equal(t, defaultSearchLimit, svc.lastLimit)
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(&stubFAQ{}, "test", testLogger)
	require.NotNil(t, s)

	reply := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	body, err := json.Marshal(reply)
	require.NoError(t, err)
	require.Contains(t, string(body), `"answer_question"`)
	require.Contains(t, string(body), `"search_faq"`)
}
