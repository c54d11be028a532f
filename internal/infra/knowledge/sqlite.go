package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/yanqian/voice-faq/internal/domain/faq"
)

// SQLiteStore keeps entries in a single-file database and ranks them in process.
type SQLiteStore struct {
	db     *sql.DB
	dims   int
	logger *slog.Logger
}

// OpenSQLiteStore opens (or creates) the database at path. ":memory:" gives a throwaway store.
func OpenSQLiteStore(path string, dims int, logger *slog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS faq_entries (
			id TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			metadata TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create faq_entries: %w", err)
	}
	return &SQLiteStore{db: db, dims: dims, logger: logger.With("component", "knowledge.sqlite")}, nil
}

// Query implements faq.KnowledgeStore.
func (s *SQLiteStore) Query(ctx context.Context, embedding []float32, topK int) ([]faq.Match, error) {
	if err := checkQuery(embedding, s.dims); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding, metadata FROM faq_entries ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("scan faq_entries: %w", err)
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var (
			id       string
			blob     []byte
			metadata string
			md       faq.Metadata
		)
		if err := rows.Scan(&id, &blob, &metadata); err != nil {
			return nil, err
		}
		vector, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", id, err)
		}
		if err := json.Unmarshal([]byte(metadata), &md); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w", id, err)
		}
		if !validMetadata(s.logger, id, md) {
			continue
		}
		candidates = append(candidates, newCandidate(id, vector, md))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := rankTopK(embedding, candidates, topK)
	matches := make([]faq.Match, 0, len(ranked))
	for _, r := range ranked {
		matches = append(matches, faq.Match{ID: r.id, Score: r.score, Metadata: r.metadata})
	}
	return matches, nil
}

// Upsert writes entries in one transaction. Existing rows keep their rowid.
func (s *SQLiteStore) Upsert(ctx context.Context, entries []faq.Entry) error {
	if err := validateEntries(entries, s.dims); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO faq_entries (id, embedding, metadata) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding, metadata = excluded.metadata, updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		payload, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, encodeFloat32s(e.Embedding), string(payload)); err != nil {
			return fmt.Errorf("upsert %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// EnsureIndex checks the dimension; the table is created on open.
func (s *SQLiteStore) EnsureIndex(_ context.Context, dims int) error {
	if s.dims > 0 && dims != s.dims {
		return fmt.Errorf("sqlite store configured for %d dimensions, got %d", s.dims, dims)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM faq_entries`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

var _ Store = (*SQLiteStore)(nil)
