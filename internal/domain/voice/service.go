package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yanqian/voice-faq/internal/domain/faq"
	apperrors "github.com/yanqian/voice-faq/pkg/errors"
	"github.com/yanqian/voice-faq/pkg/metrics"
)

const internalServerError = "Internal server error"

// Answerer runs the answer pipeline.
type Answerer interface {
	Answer(ctx context.Context, req faq.Request) (faq.Response, error)
}

// Config controls the webhook handling.
type Config struct {
	ToolName string
}

// Service maps platform webhook messages onto sessions and serves tool calls.
type Service struct {
	cfg    Config
	answer Answerer
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func nowUTC() time.Time { return time.Now().UTC() }

// NewService constructs the voice webhook service.
func NewService(cfg Config, answer Answerer, repo Repository, logger *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		answer: answer,
		repo:   repo,
		logger: logger.With("component", "voice.service"),
		now:    nowUTC,
	}
}

// Handle processes one webhook message. Invalid transitions are logged and acknowledged.
func (s *Service) Handle(ctx context.Context, env Envelope) (Reply, error) {
	msg := env.Message
	msgType := strings.TrimSpace(msg.Type)
	if msgType == "" {
		return Reply{}, apperrors.Wrap(apperrors.CodeInvalidRequest, "message.type is required", nil)
	}
	metrics.VoiceEvents.WithLabelValues(msgType).Inc()

	switch msgType {
	case MessageToolCalls:
		results := make([]ToolResult, 0, len(msg.ToolCallList))
		for _, call := range msg.ToolCallList {
			results = append(results, s.runTool(ctx, call.ID, call.Function))
		}
		s.recordToolCalls(ctx, msg.Call.ID, len(results))
		return Reply{Results: results}, nil
	case MessageFunctionCall:
		if msg.FunctionCall == nil {
			return Reply{}, apperrors.Wrap(apperrors.CodeInvalidRequest, "message.functionCall is required", nil)
		}
		result := s.runTool(ctx, "", *msg.FunctionCall)
		s.recordToolCalls(ctx, msg.Call.ID, 1)
		return Reply{Result: result.Result, Error: result.Error}, nil
	}

	if msg.Call.ID == "" {
		s.logger.Debug("voice message without call id", "type", msgType)
		return Reply{}, nil
	}
	return Reply{}, s.updateSession(ctx, msg)
}

// Session returns the stored snapshot for a call.
func (s *Service) Session(ctx context.Context, id string) (Session, error) {
	session, ok, err := s.repo.Get(ctx, id)
	if err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeDependencyFailure, "session lookup failed", err)
	}
	if !ok {
		return Session{}, apperrors.Wrap(apperrors.CodeNotFound, "session not found", nil)
	}
	return session, nil
}

func (s *Service) runTool(ctx context.Context, callID string, fn FunctionCall) ToolResult {
	out := ToolResult{ToolCallID: callID}
	if fn.Name != s.cfg.ToolName {
		s.logger.Warn("unknown voice tool requested", "tool", fn.Name, "toolCallId", callID)
		out.Error = fmt.Sprintf("Unknown tool %q", fn.Name)
		return out
	}
	query, err := fn.QueryArgument()
	if err != nil {
		s.logger.Warn("voice tool call arguments unreadable", "toolCallId", callID, "error", err)
		out.Error = "Query is required"
		return out
	}
	resp, err := s.answer.Answer(ctx, faq.Request{Query: query})
	switch {
	case err == nil:
		out.Result = resp.Answer
	case apperrors.IsCode(err, apperrors.CodeInvalidRequest):
		out.Error = apperrors.MessageOf(err)
	default:
		s.logger.Error("voice tool call failed", "toolCallId", callID, "error", err)
		out.Error = internalServerError
	}
	return out
}

func (s *Service) recordToolCalls(ctx context.Context, callID string, n int) {
	if callID == "" || n == 0 {
		return
	}
	now := s.now()
	err := s.repo.Update(ctx, callID, func(session *Session) error {
		seed(session, callID, now)
		session.ToolCalls += n
		session.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.logger.Warn("voice session update failed", "callId", callID, "error", err)
	}
}

func (s *Service) updateSession(ctx context.Context, msg Message) error {
	var apply func(session *Session) error
	if msg.Type == MessageTranscript {
		if msg.TranscriptType != "final" || strings.TrimSpace(msg.Transcript) == "" {
			return nil
		}
		apply = s.appendTranscript(msg)
	} else {
		ev, ok := eventFor(msg)
		if !ok {
			s.logger.Debug("voice message ignored", "type", msg.Type, "status", msg.Status, "callId", msg.Call.ID)
			return nil
		}
		apply = s.transition(msg, ev)
	}
	if err := s.repo.Update(ctx, msg.Call.ID, apply); err != nil {
		return apperrors.Wrap(apperrors.CodeDependencyFailure, "session update failed", err)
	}
	return nil
}

func (s *Service) appendTranscript(msg Message) func(*Session) error {
	now := s.now()
	line := TranscriptLine{Role: msg.Role, Text: strings.TrimSpace(msg.Transcript), At: now}
	return func(session *Session) error {
		seed(session, msg.Call.ID, now)
		session.Transcript = append(session.Transcript, line)
		session.UpdatedAt = now
		return nil
	}
}

// transition applies ev to the stored state. Rejected transitions leave the session untouched.
func (s *Service) transition(msg Message, ev Event) func(*Session) error {
	now := s.now()
	return func(session *Session) error {
		seed(session, msg.Call.ID, now)
		from := session.State
		if ev == EventHangup && from == StateEnded {
			// The end-of-call report usually follows the ended status update.
			if session.EndedReason == "" && msg.EndedReason != "" {
				session.EndedReason = msg.EndedReason
				session.UpdatedAt = now
				return nil
			}
			return ErrUnchanged
		}
		if err := session.Apply(ev, now); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				s.logger.Warn("voice session transition rejected", "callId", msg.Call.ID, "state", from, "event", ev, "type", msg.Type)
				return ErrUnchanged
			}
			return err
		}
		switch ev {
		case EventHangup:
			if msg.EndedReason != "" {
				session.EndedReason = msg.EndedReason
			}
		case EventFailure:
			session.LastError = firstNonEmpty(msg.Error, msg.EndedReason, msg.Type)
		}
		s.logger.Info("voice session transition", "callId", msg.Call.ID, "from", from, "to", session.State, "event", ev)
		return nil
	}
}

// seed initialises a session the repository has not stored yet.
func seed(session *Session, id string, now time.Time) {
	if session.ID == "" {
		*session = NewSession(id, now)
	}
}

// eventFor maps a platform message onto a machine event.
func eventFor(msg Message) (Event, bool) {
	switch msg.Type {
	case MessageStatusUpdate:
		switch msg.Status {
		case "queued", "ringing":
			return EventDial, true
		case "in-progress":
			return EventConnected, true
		case "ended":
			return EventHangup, true
		}
	case MessageSpeechUpdate:
		if msg.Role != "assistant" {
			return "", false
		}
		switch msg.Status {
		case "started":
			return EventSpeechStarted, true
		case "stopped":
			return EventSpeechStopped, true
		}
	case MessageEndOfCall:
		return EventHangup, true
	case MessageHang, MessageError:
		return EventFailure, true
	}
	return "", false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
