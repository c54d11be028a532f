package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/yanqian/voice-faq/internal/domain/faq"
)

// MemoryStore keeps entries in process memory and ranks them by cosine similarity.
type MemoryStore struct {
	mu      sync.RWMutex
	dims    int
	order   []string
	entries map[string]candidate
	logger  *slog.Logger
}

// NewMemoryStore constructs an empty store for vectors of the given dimension.
func NewMemoryStore(dims int, logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		dims:    dims,
		entries: make(map[string]candidate),
		logger:  logger.With("component", "knowledge.memory"),
	}
}

// Query implements faq.KnowledgeStore.
func (s *MemoryStore) Query(_ context.Context, embedding []float32, topK int) ([]faq.Match, error) {
	if err := checkQuery(embedding, s.dims); err != nil {
		return nil, err
	}
	s.mu.RLock()
	candidates := make([]candidate, 0, len(s.order))
	for _, id := range s.order {
		candidates = append(candidates, s.entries[id])
	}
	s.mu.RUnlock()

	ranked := rankTopK(embedding, candidates, topK)
	matches := make([]faq.Match, 0, len(ranked))
	for _, r := range ranked {
		matches = append(matches, faq.Match{ID: r.id, Score: r.score, Metadata: r.metadata})
	}
	return matches, nil
}

// Upsert inserts or replaces entries by id. Replaced entries keep their original position.
func (s *MemoryStore) Upsert(_ context.Context, entries []faq.Entry) error {
	if err := validateEntries(entries, s.dims); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		vector := make([]float32, len(e.Embedding))
		copy(vector, e.Embedding)
		if _, exists := s.entries[e.ID]; !exists {
			s.order = append(s.order, e.ID)
		}
		s.entries[e.ID] = newCandidate(e.ID, vector, e.Metadata)
	}
	return nil
}

// EnsureIndex records the dimension of an unconfigured store and rejects a mismatch otherwise.
func (s *MemoryStore) EnsureIndex(_ context.Context, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims == 0 {
		s.dims = dims
		return nil
	}
	if s.dims != dims {
		return fmt.Errorf("memory store holds %d-dimensional vectors, got %d", s.dims, dims)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
