package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yanqian/voice-faq/internal/domain/faq"
	"github.com/yanqian/voice-faq/pkg/metrics"
)

// Embedder maps texts to vectors in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Writer is the write side of a knowledge store.
type Writer interface {
	EnsureIndex(ctx context.Context, dims int) error
	Upsert(ctx context.Context, entries []faq.Entry) error
}

// Progress receives the number of items finished since the last call.
type Progress func(delta int)

// Config drives batching and entry stamping.
type Config struct {
	BatchSize   int
	Concurrency int
	IDPrefix    string
	Company     string
	Dimensions  int
}

// Report summarises an ingestion run.
type Report struct {
	Records    int `json:"records"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	Entries    int `json:"entries"`
	Upserted   int `json:"upserted"`
}

// Service turns scraped records into validated knowledge entries.
type Service struct {
	cfg      Config
	embedder Embedder
	logger   *slog.Logger
}

// NewService constructs the ingestion pipeline.
func NewService(cfg Config, embedder Embedder, logger *slog.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = faq.EntryType
	}
	return &Service{cfg: cfg, embedder: embedder, logger: logger.With("component", "ingest.service")}
}

// EntryID derives a stable id from the section and question text.
func EntryID(prefix, section, question string) string {
	name := faq.NormalizeQuestion(section) + "\x00" + faq.NormalizeQuestion(question)
	return prefix + "_" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Clean drops records without a question or answer and collapses duplicates onto the first occurrence.
func (s *Service) Clean(records []Record) ([]Record, Report) {
	report := Report{Records: len(records)}
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for i, r := range records {
		r.Section = strings.TrimSpace(r.Section)
		r.Question = strings.TrimSpace(r.Question)
		r.Answer = strings.TrimSpace(r.Answer)
		if r.Question == "" || r.Answer == "" {
			report.Skipped++
			s.logger.Warn("skipping record without question or answer", "index", i, "section", r.Section)
			continue
		}
		id := EntryID(s.cfg.IDPrefix, r.Section, r.Question)
		if _, dup := seen[id]; dup {
			report.Duplicates++
			s.logger.Warn("skipping duplicate record", "index", i, "id", id, "question", r.Question)
			continue
		}
		seen[id] = struct{}{}
		out = append(out, r)
	}
	return out, report
}

// Embed cleans records, embeds their questions and returns validated entries in input order.
func (s *Service) Embed(ctx context.Context, records []Record, progress Progress) ([]faq.Entry, Report, error) {
	cleaned, report := s.Clean(records)
	if len(cleaned) == 0 {
		return nil, report, nil
	}

	questions := make([]string, len(cleaned))
	for i, r := range cleaned {
		questions[i] = r.Question
	}
	vectors, err := s.embedBatches(ctx, questions, progress)
	if err != nil {
		return nil, report, err
	}

	model := s.embedder.Model()
	entries := make([]faq.Entry, len(cleaned))
	for i, r := range cleaned {
		entries[i] = faq.Entry{
			ID:        EntryID(s.cfg.IDPrefix, r.Section, r.Question),
			Embedding: vectors[i],
			Metadata: faq.Metadata{
				Section:        r.Section,
				Question:       r.Question,
				Answer:         r.Answer,
				SourceURL:      r.SourceURL,
				Type:           faq.EntryType,
				Company:        s.cfg.Company,
				EmbeddingModel: model,
			},
		}
	}
	if err := Validate(entries, s.cfg.Dimensions); err != nil {
		return nil, report, err
	}
	report.Entries = len(entries)
	s.logger.Info("records embedded", "records", report.Records, "entries", report.Entries,
		"skipped", report.Skipped, "duplicates", report.Duplicates, "model", model)
	return entries, report, nil
}

// Upload validates entries then upserts them batch by batch.
func (s *Service) Upload(ctx context.Context, w Writer, entries []faq.Entry, progress Progress) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if err := Validate(entries, s.cfg.Dimensions); err != nil {
		return 0, err
	}
	dims := s.cfg.Dimensions
	if dims <= 0 {
		dims = len(entries[0].Embedding)
	}
	if err := w.EnsureIndex(ctx, dims); err != nil {
		return 0, fmt.Errorf("ensure index: %w", err)
	}
	upserted := 0
	for start := 0; start < len(entries); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(entries))
		if err := w.Upsert(ctx, entries[start:end]); err != nil {
			return upserted, fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
		upserted += end - start
		metrics.IngestedEntries.Add(float64(end - start))
		if progress != nil {
			progress(end - start)
		}
	}
	s.logger.Info("entries upserted", "count", upserted)
	return upserted, nil
}

// Ingest runs Embed followed by Upload.
func (s *Service) Ingest(ctx context.Context, records []Record, w Writer, progress Progress) (Report, error) {
	entries, report, err := s.Embed(ctx, records, progress)
	if err != nil {
		return report, err
	}
	report.Upserted, err = s.Upload(ctx, w, entries, nil)
	return report, err
}

// Validate checks every entry for required metadata, a consistent dimension and unique ids.
func Validate(entries []faq.Entry, dims int) error {
	if len(entries) > 0 && dims <= 0 {
		dims = len(entries[0].Embedding)
	}
	ids := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if err := e.Validate(dims); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if _, dup := ids[e.ID]; dup {
			return fmt.Errorf("entry %d: duplicate id %s", i, e.ID)
		}
		ids[e.ID] = struct{}{}
	}
	return nil
}

func (s *Service) embedBatches(ctx context.Context, texts []string, progress Progress) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var progressMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vectors, err := s.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vectors))
			}
			copy(out[start:end], vectors)
			s.logger.Debug("embedding batch done", "from", start, "to", end)
			if progress != nil {
				progressMu.Lock()
				progress(end - start)
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
