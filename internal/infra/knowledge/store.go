package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yanqian/voice-faq/internal/domain/faq"
)

// Store is implemented by every knowledge backend. The answer pipeline only reads through Query.
type Store interface {
	Query(ctx context.Context, embedding []float32, topK int) ([]faq.Match, error)
	Upsert(ctx context.Context, entries []faq.Entry) error
	EnsureIndex(ctx context.Context, dims int) error
	Count(ctx context.Context) (int, error)
	Close() error
}

func validateEntries(entries []faq.Entry, dims int) error {
	for _, e := range entries {
		if err := e.Validate(dims); err != nil {
			return fmt.Errorf("reject upsert: %w", err)
		}
	}
	return nil
}

func checkQuery(embedding []float32, dims int) error {
	if len(embedding) == 0 {
		return fmt.Errorf("query embedding is empty")
	}
	if dims > 0 && len(embedding) != dims {
		return fmt.Errorf("query embedding has %d dimensions, want %d", len(embedding), dims)
	}
	return nil
}

// decodeMatch turns a raw metadata bag into a typed match, logging and skipping incomplete records.
func decodeMatch(logger *slog.Logger, id string, score float64, raw map[string]any) (faq.Match, bool) {
	md, err := faq.DecodeMetadata(raw)
	if err != nil {
		logger.Warn("dropping knowledge match with invalid metadata", "id", id, "error", err)
		return faq.Match{}, false
	}
	return faq.Match{ID: id, Score: score, Metadata: md}, true
}

func validMetadata(logger *slog.Logger, id string, md faq.Metadata) bool {
	if err := md.Validate(); err != nil {
		logger.Warn("dropping knowledge entry with invalid metadata", "id", id, "error", err)
		return false
	}
	return true
}
