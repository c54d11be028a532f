package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/voice-faq/internal/domain/faq"
)

type stubEmbedder struct {
	mu      sync.Mutex
	dims    int
	batches [][]string
	err     error
}

func (s *stubEmbedder) Model() string { return "stub-model" }

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.batches = append(s.batches, append([]string(nil), texts...))
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, s.dims)
		vec[0] = float32(len(text))
		out[i] = vec
	}
	return out, nil
}

type recordingWriter struct {
	dims    int
	batches [][]faq.Entry
	err     error
}

func (w *recordingWriter) EnsureIndex(_ context.Context, dims int) error {
	w.dims = dims
	return nil
}

func (w *recordingWriter) Upsert(_ context.Context, entries []faq.Entry) error {
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, entries)
	return nil
}

func newTestService(embedder Embedder, batchSize int) *Service {
	return NewService(Config{
		BatchSize:   batchSize,
		Concurrency: 3,
		IDPrefix:    "aven_faq",
		Company:     "aven",
		Dimensions:  4,
	}, embedder, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func records(n int) []Record {
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Record{
			Section:   "General",
			Question:  "Question number " + strings.Repeat("x", i+1),
			Answer:    "Answer",
			SourceURL: "https://example.com",
		})
	}
	return out
}

func TestEntryIDIsStable(t *testing.T) {
	a := EntryID("aven_faq", "Payments", "How do I pay?")
	b := EntryID("aven_faq", " payments ", "how do I pay")
	c := EntryID("aven_faq", "Fees", "How do I pay?")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.True(t, strings.HasPrefix(a, "aven_faq_"))
}

func TestCleanSkipsIncompleteAndDuplicates(t *testing.T) {
	svc := newTestService(&stubEmbedder{dims: 4}, 10)
	cleaned, report := svc.Clean([]Record{
		{Section: "A", Question: "Q1", Answer: "A1"},
		{Section: "A", Question: "  ", Answer: "A2"},
		{Section: "A", Question: "Q3", Answer: ""},
		{Section: "A", Question: "q1?", Answer: "again"},
		{Section: "B", Question: "Q1", Answer: "other section"},
	})
	require.Len(t, cleaned, 2)
	require.Equal(t, 5, report.Records)
	require.Equal(t, 2, report.Skipped)
	require.Equal(t, 1, report.Duplicates)
	require.Equal(t, "A1", cleaned[0].Answer)
}

func TestEmbedBatchesAndKeepsOrder(t *testing.T) {
	embedder := &stubEmbedder{dims: 4}
	svc := newTestService(embedder, 3)
	input := records(8)

	var progressed int
	entries, report, err := svc.Embed(context.Background(), input, func(n int) { progressed += n })
	require.NoError(t, err)
	require.Len(t, entries, 8)
	require.Equal(t, 8, report.Entries)
	require.Equal(t, 8, progressed)
	require.Len(t, embedder.batches, 3)

	for i, e := range entries {
		require.Equal(t, input[i].Question, e.Metadata.Question)
		require.Equal(t, float32(len(input[i].Question)), e.Embedding[0])
		require.Equal(t, faq.EntryType, e.Metadata.Type)
		require.Equal(t, "aven", e.Metadata.Company)
		require.Equal(t, "stub-model", e.Metadata.EmbeddingModel)
		require.Equal(t, EntryID("aven_faq", "General", input[i].Question), e.ID)
	}
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	svc := newTestService(&stubEmbedder{dims: 3}, 10)
	_, _, err := svc.Embed(context.Background(), records(2), nil)
	require.ErrorContains(t, err, "want 4")
}

func TestEmbedPropagatesFailure(t *testing.T) {
	svc := newTestService(&stubEmbedder{dims: 4, err: errors.New("quota")}, 2)
	_, _, err := svc.Embed(context.Background(), records(5), nil)
	require.ErrorContains(t, err, "quota")
}

func TestIngestUploadsInBatches(t *testing.T) {
	svc := newTestService(&stubEmbedder{dims: 4}, 2)
	writer := &recordingWriter{}

	report, err := svc.Ingest(context.Background(), records(5), writer, nil)
	require.NoError(t, err)
	require.Equal(t, 5, report.Upserted)
	require.Equal(t, 4, writer.dims)
	require.Len(t, writer.batches, 3)
	require.Len(t, writer.batches[2], 1)
}

func TestUploadStopsOnWriterError(t *testing.T) {
	svc := newTestService(&stubEmbedder{dims: 4}, 2)
	entries, _, err := svc.Embed(context.Background(), records(3), nil)
	require.NoError(t, err)

	n, err := svc.Upload(context.Background(), &recordingWriter{err: errors.New("denied")}, entries, nil)
	require.Error(t, err)
	require.Zero(t, n)
}

func TestValidateDuplicateIDs(t *testing.T) {
	e := faq.Entry{ID: "x", Embedding: []float32{1}, Metadata: faq.Metadata{Question: "q", Answer: "a"}}
	require.ErrorContains(t, Validate([]faq.Entry{e, e}, 1), "duplicate id")
}

func TestVectorsArtifactRoundTrip(t *testing.T) {
	svc := newTestService(&stubEmbedder{dims: 4}, 10)
	entries, _, err := svc.Embed(context.Background(), records(2), nil)
	require.NoError(t, err)

	data, err := EncodeVectors(entries)
	require.NoError(t, err)
	require.Contains(t, string(data), `"values"`)
	require.Contains(t, string(data), `"embedding_model": "stub-model"`)

	decoded, err := DecodeVectors(data)
	require.NoError(t, err)
	require.Equal(t, entries, decoded)

	empty, err := EncodeVectors(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", string(empty))
}
