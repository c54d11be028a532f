package knowledge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/voice-faq/internal/domain/faq"
	"github.com/yanqian/voice-faq/internal/infra/config"
)

func TestOpenSeedsMemoryStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	data, err := json.Marshal([]faq.Entry{entry("pay", "How do I make a payment?", 1, 0), entry("fee", "Fees?", 0, 1)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	store, err := Open(context.Background(), config.KnowledgeConfig{Backend: config.BackendMemory, SeedFile: path}, 2, newTestLogger())
	require.NoError(t, err)
	defer store.Close()

	matches, err := store.Query(context.Background(), []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "How do I make a payment?", matches[0].Metadata.Question)
}

func TestOpenRejectsSeedWithWrongDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	data, err := json.Marshal([]faq.Entry{entry("pay", "q", 1, 0, 0)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = Open(context.Background(), config.KnowledgeConfig{Backend: config.BackendMemory, SeedFile: path}, 2, newTestLogger())
	require.Error(t, err)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.KnowledgeConfig{Backend: "chroma"}, 2, newTestLogger())
	require.Error(t, err)
}
