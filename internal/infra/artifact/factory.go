package artifact

import (
	"fmt"
	"log/slog"

	"github.com/yanqian/voice-faq/internal/domain/ingest"
	"github.com/yanqian/voice-faq/internal/infra/config"
)

// Open builds the artifact store selected by cfg.Backend.
func Open(cfg config.ArtifactConfig, logger *slog.Logger) (ingest.ArtifactStore, error) {
	switch cfg.Backend {
	case config.BackendLocal, "":
		return NewLocalStore(cfg.Dir), nil
	case config.BackendR2:
		return NewR2Store(cfg.R2, logger)
	default:
		return nil, fmt.Errorf("unsupported artifacts backend %q", cfg.Backend)
	}
}
