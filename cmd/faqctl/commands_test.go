package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/voice-faq/internal/domain/ingest"
	"github.com/yanqian/voice-faq/internal/infra/embedder"
	"github.com/yanqian/voice-faq/internal/infra/llm/chatgpt"
)

const testRecords = `[
  {"section":"Payments","question":"How do I make a payment?","answer":"Pay online from your account.","source_url":"https://example.com/support"},
  {"section":"Payments","question":"Can I pay by phone?","answer":"Yes, call support."},
  {"section":"Cards","question":"","answer":"orphan answer"}
]`

func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LLM_EMBEDDING_DIMENSIONS", "16")
	t.Setenv("KNOWLEDGE_BACKEND", "bolt")
	t.Setenv("BOLT_PATH", filepath.Join(dir, "faq.bolt"))
	t.Setenv("ARTIFACTS_BACKEND", "local")
	t.Setenv("ARTIFACTS_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq_data.json"), []byte(testRecords), 0o600))
	return dir
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--deterministic", "--quiet"))
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestEmbedUploadSearch(t *testing.T) {
	dir := setupWorkspace(t)

	out := runCLI(t, "embed", "--input", "faq_data.json", "--output", "faq_vectors.json")
	require.Contains(t, out, "embedded 2 entries (1 skipped")

	data, err := os.ReadFile(filepath.Join(dir, "faq_vectors.json"))
	require.NoError(t, err)
	entries, err := ingest.DecodeVectors(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Len(t, entries[0].Embedding, 16)
	require.Equal(t, "deterministic-fnv", entries[0].Metadata.EmbeddingModel)

	out = runCLI(t, "upload", "--input", "faq_vectors.json")
	require.Contains(t, out, "upserted 2 entries into bolt (store now holds 2)")

	out = runCLI(t, "search", "How do I make a payment?", "--limit", "1")
	require.Contains(t, out, "1. [1.0000] How do I make a payment?")
	require.NotContains(t, out, "2.")
}

func TestIngestPrintsReport(t *testing.T) {
	setupWorkspace(t)

	out := runCLI(t, "ingest", "--input", "faq_data.json")
	var report ingest.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, 3, report.Records)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 2, report.Upserted)
}

func TestIngestIsIdempotent(t *testing.T) {
	setupWorkspace(t)

	runCLI(t, "ingest", "--input", "faq_data.json", "--output", "faq_vectors.json")
	runCLI(t, "ingest", "--input", "faq_data.json")
	out := runCLI(t, "upload", "--input", "faq_vectors.json")
	require.Contains(t, out, "store now holds 2")
}

func TestEmbedMissingInputFails(t *testing.T) {
	setupWorkspace(t)
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"embed", "--input", "nope.json", "--deterministic", "--quiet"})
	require.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestOfflineClient(t *testing.T) {
	client := offlineClient{embedder: embedder.NewDeterministicEmbedder(8)}

	resp, err := client.CreateEmbedding(context.Background(), chatgpt.EmbeddingRequest{Input: "hello"})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	require.Len(t, resp.Data[0].Embedding, 8)

	_, err = client.CreateEmbedding(context.Background(), chatgpt.EmbeddingRequest{Input: 42})
	require.Error(t, err)

	_, err = client.CreateChatCompletion(context.Background(), chatgpt.ChatCompletionRequest{})
	require.ErrorIs(t, err, errOfflineCompletion)
}
