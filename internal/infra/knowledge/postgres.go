package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/yanqian/voice-faq/internal/domain/faq"
	"github.com/yanqian/voice-faq/internal/infra/config"
)

// PostgresStore keeps entries in a pgvector table and ranks by cosine distance.
type PostgresStore struct {
	pool   *pgxpool.Pool
	table  string
	dims   int
	logger *slog.Logger
}

// NewPostgresPool opens and pings a pgx pool.
func NewPostgresPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewPostgresStore constructs the store on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, table string, dims int, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		table:  pgx.Identifier{table}.Sanitize(),
		dims:   dims,
		logger: logger.With("component", "knowledge.postgres"),
	}
}

// Query implements faq.KnowledgeStore.
func (s *PostgresStore) Query(ctx context.Context, embedding []float32, topK int) ([]faq.Match, error) {
	if err := checkQuery(embedding, s.dims); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, created_at
		LIMIT $2
	`, s.table), pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []faq.Match
	for rows.Next() {
		id, score, md, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		if validMetadata(s.logger, id, md) {
			matches = append(matches, faq.Match{ID: id, Score: score, Metadata: md})
		}
	}
	return matches, rows.Err()
}

// Upsert writes all entries in one transaction.
func (s *PostgresStore) Upsert(ctx context.Context, entries []faq.Entry) error {
	if err := validateEntries(entries, s.dims); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = now()
	`, s.table)
	for _, e := range entries {
		payload, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata %s: %w", e.ID, err)
		}
		batch.Queue(stmt, e.ID, pgvector.NewVector(e.Embedding), payload)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert entries: %w", err)
	}
	return tx.Commit(ctx)
}

// EnsureIndex creates the pgvector extension and table when missing.
func (s *PostgresStore) EnsureIndex(ctx context.Context, dims int) error {
	if s.dims > 0 && dims != s.dims {
		return fmt.Errorf("postgres store configured for %d dimensions, got %d", s.dims, dims)
	}
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, s.table, dims))
	if err != nil {
		return fmt.Errorf("create knowledge table: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n)
	return n, err
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (string, float64, faq.Metadata, error) {
	var (
		id    string
		raw   []byte
		score float64
		md    faq.Metadata
	)
	if err := row.Scan(&id, &raw, &score); err != nil {
		return "", 0, faq.Metadata{}, err
	}
	if err := json.Unmarshal(raw, &md); err != nil {
		return "", 0, faq.Metadata{}, fmt.Errorf("decode metadata %s: %w", id, err)
	}
	return id, score, md, nil
}

var _ Store = (*PostgresStore)(nil)
