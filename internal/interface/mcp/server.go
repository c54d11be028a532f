// Package mcp exposes the answer pipeline as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/yanqian/voice-faq/internal/domain/faq"
	apperrors "github.com/yanqian/voice-faq/pkg/errors"
)

const defaultSearchLimit = 3

// NewServer registers answer_question and search_faq on a fresh MCP server.
func NewServer(svc faq.Service, version string, logger *slog.Logger) *server.MCPServer {
	logger = logger.With("component", "mcp.server")
	s := server.NewMCPServer(
		"voice-faq",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("Customer support FAQ. Answers are grounded in the ingested knowledge base."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("answer_question",
			mcp.WithDescription("Answer a customer support question from the FAQ knowledge base."),
			mcp.WithString("query", mcp.Description("The customer's question"), mcp.Required()),
		),
		answerQuestion(svc, logger),
	)

	s.AddTool(
		mcp.NewTool("search_faq",
			mcp.WithDescription("Return the FAQ entries most similar to a query, best first."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of matches (default 3)")),
		),
		searchFAQ(svc, logger),
	)

	return s
}

func answerQuestion(svc faq.Service, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return toolError("Query is required"), nil
		}
		resp, err := svc.Answer(ctx, faq.Request{Query: query})
		if err != nil {
			return failure(logger, "answer_question", err), nil
		}
		return toolJSON(resp)
	}
}

type searchResult struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Section  string  `json:"section"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
}

func searchFAQ(svc faq.Service, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return toolError("Query is required"), nil
		}
		limit := req.GetInt("limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		matches, err := svc.Search(ctx, query, limit)
		if err != nil {
			return failure(logger, "search_faq", err), nil
		}
		out := make([]searchResult, 0, len(matches))
		for _, m := range matches {
			out = append(out, searchResult{
				ID:       m.ID,
				Score:    m.Score,
				Section:  m.Metadata.Section,
				Question: m.Metadata.Question,
				Answer:   m.Metadata.Answer,
			})
		}
		return toolJSON(out)
	}
}

func failure(logger *slog.Logger, tool string, err error) *mcp.CallToolResult {
	if apperrors.IsCode(err, apperrors.CodeInvalidRequest) {
		return toolError(apperrors.MessageOf(err))
	}
	logger.Error("mcp tool failed", "tool", tool, "error", err)
	return toolError("Internal server error")
}

func toolJSON(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(body)}},
	}, nil
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: msg}},
		IsError: true,
	}
}
