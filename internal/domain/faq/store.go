package faq

import "context"

// KnowledgeStore answers nearest neighbour queries with metadata included.
// Matches come back best first and carry validated metadata.
type KnowledgeStore interface {
	Query(ctx context.Context, embedding []float32, topK int) ([]Match, error)
}
