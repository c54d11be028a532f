package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/yanqian/voice-faq/internal/domain/faq"
)

var bucketEntries = []byte("faq_entries")

type boltRecord struct {
	Seq      uint64       `json:"seq"`
	Values   []float32    `json:"values"`
	Metadata faq.Metadata `json:"metadata"`
}

// BoltStore keeps JSON-encoded entries in a bbolt bucket keyed by id.
type BoltStore struct {
	db     *bbolt.DB
	dims   int
	logger *slog.Logger
}

// OpenBoltStore opens (or creates) the bolt file at path.
func OpenBoltStore(path string, dims int, logger *slog.Logger) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketEntries, err)
	}
	return &BoltStore{db: db, dims: dims, logger: logger.With("component", "knowledge.bolt")}, nil
}

// Query implements faq.KnowledgeStore.
func (s *BoltStore) Query(_ context.Context, embedding []float32, topK int) ([]faq.Match, error) {
	if err := checkQuery(embedding, s.dims); err != nil {
		return nil, err
	}
	type seqCandidate struct {
		seq uint64
		candidate
	}
	var loaded []seqCandidate
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode entry %s: %w", k, err)
			}
			id := string(k)
			if !validMetadata(s.logger, id, rec.Metadata) {
				return nil
			}
			loaded = append(loaded, seqCandidate{seq: rec.Seq, candidate: newCandidate(id, rec.Values, rec.Metadata)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].seq < loaded[j].seq })

	candidates := make([]candidate, 0, len(loaded))
	for _, l := range loaded {
		candidates = append(candidates, l.candidate)
	}
	ranked := rankTopK(embedding, candidates, topK)
	matches := make([]faq.Match, 0, len(ranked))
	for _, r := range ranked {
		matches = append(matches, faq.Match{ID: r.id, Score: r.score, Metadata: r.metadata})
	}
	return matches, nil
}

// Upsert writes all entries in one bolt transaction. Replaced entries keep their sequence.
func (s *BoltStore) Upsert(_ context.Context, entries []faq.Entry) error {
	if err := validateEntries(entries, s.dims); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEntries)
		for _, e := range entries {
			key := []byte(e.ID)
			rec := boltRecord{Values: e.Embedding, Metadata: e.Metadata}
			if existing := bucket.Get(key); existing != nil {
				var prev boltRecord
				if err := json.Unmarshal(existing, &prev); err != nil {
					return fmt.Errorf("decode entry %s: %w", e.ID, err)
				}
				rec.Seq = prev.Seq
			} else {
				seq, err := bucket.NextSequence()
				if err != nil {
					return err
				}
				rec.Seq = seq
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode entry %s: %w", e.ID, err)
			}
			if err := bucket.Put(key, payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureIndex checks the dimension; the bucket is created on open.
func (s *BoltStore) EnsureIndex(_ context.Context, dims int) error {
	if s.dims > 0 && dims != s.dims {
		return fmt.Errorf("bolt store configured for %d dimensions, got %d", s.dims, dims)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *BoltStore) Count(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEntries).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the bolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)
