package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/yanqian/voice-faq/internal/domain/faq"
	"github.com/yanqian/voice-faq/internal/domain/ingest"
	"github.com/yanqian/voice-faq/internal/infra/config"
)

// Open builds the backend selected by cfg.Backend. The caller owns Close.
func Open(ctx context.Context, cfg config.KnowledgeConfig, dims int, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		store := NewMemoryStore(dims, logger)
		if cfg.SeedFile != "" {
			entries, err := LoadVectorsFile(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := store.Upsert(ctx, entries); err != nil {
				return nil, fmt.Errorf("seed memory store: %w", err)
			}
			logger.Info("memory knowledge store seeded", "entries", len(entries), "file", cfg.SeedFile)
		}
		return store, nil
	case config.BackendPostgres:
		pool, err := NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool, cfg.Postgres.Table, dims, logger), nil
	case config.BackendPinecone:
		return NewPineconeStore(cfg.Pinecone, dims, logger)
	case config.BackendSQLite:
		return OpenSQLiteStore(cfg.SQLite.Path, dims, logger)
	case config.BackendBolt:
		return OpenBoltStore(cfg.Bolt.Path, dims, logger)
	default:
		return nil, fmt.Errorf("unsupported knowledge backend %q", cfg.Backend)
	}
}

// LoadVectorsFile reads a vectors artifact ([{id, values, metadata}]) from disk.
func LoadVectorsFile(path string) ([]faq.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vectors file: %w", err)
	}
	return ingest.DecodeVectors(data)
}
