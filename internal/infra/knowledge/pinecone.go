package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yanqian/voice-faq/internal/domain/faq"
	"github.com/yanqian/voice-faq/internal/infra/config"
)

const (
	pineconeUpsertBatch = 100
	pineconeReadyWait   = 2 * time.Minute
)

// pineconeControl is the slice of the control plane the store uses. *pinecone.Client satisfies it.
type pineconeControl interface {
	DescribeIndex(ctx context.Context, name string) (*pinecone.Index, error)
	CreateServerlessIndex(ctx context.Context, in *pinecone.CreateServerlessIndexRequest) (*pinecone.Index, error)
}

// pineconeIndex is the data plane connection. *pinecone.IndexConnection satisfies it.
type pineconeIndex interface {
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
	Close() error
}

// PineconeStore serves a serverless Pinecone index through the official SDK.
type PineconeStore struct {
	control   pineconeControl
	connect   func(host, namespace string) (pineconeIndex, error)
	indexName string
	namespace string
	cloud     string
	region    string
	dims      int
	logger    *slog.Logger

	pollInterval time.Duration

	mu   sync.Mutex
	host string
	conn pineconeIndex
}

// NewPineconeStore builds the client. The index host is resolved on first use unless configured.
func NewPineconeStore(cfg config.PineconeConfig, dims int, logger *slog.Logger) (*PineconeStore, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("pinecone api key cannot be empty")
	}
	if strings.TrimSpace(cfg.IndexName) == "" {
		return nil, errors.New("pinecone index name cannot be empty")
	}
	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
		Host:   strings.TrimRight(cfg.ControlPlaneURL, "/"),
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone client: %w", err)
	}
	connect := func(host, namespace string) (pineconeIndex, error) {
		return client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	}
	return newPineconeStore(client, connect, cfg, dims, logger), nil
}

func newPineconeStore(control pineconeControl, connect func(host, namespace string) (pineconeIndex, error), cfg config.PineconeConfig, dims int, logger *slog.Logger) *PineconeStore {
	return &PineconeStore{
		control:      control,
		connect:      connect,
		indexName:    cfg.IndexName,
		namespace:    cfg.Namespace,
		cloud:        cfg.Cloud,
		region:       cfg.Region,
		dims:         dims,
		host:         normalizeHost(cfg.Host),
		logger:       logger.With("component", "knowledge.pinecone"),
		pollInterval: 2 * time.Second,
	}
}

// Query implements faq.KnowledgeStore.
func (s *PineconeStore) Query(ctx context.Context, embedding []float32, topK int) ([]faq.Match, error) {
	if err := checkQuery(embedding, s.dims); err != nil {
		return nil, err
	}
	conn, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	res, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          embedding,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone query: %w", err)
	}
	matches := make([]faq.Match, 0, len(res.Matches))
	for _, m := range res.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		var raw map[string]any
		if m.Vector.Metadata != nil {
			raw = m.Vector.Metadata.AsMap()
		}
		if match, ok := decodeMatch(s.logger, m.Vector.Id, float64(m.Score), raw); ok {
			matches = append(matches, match)
		}
	}
	return matches, nil
}

// Upsert sends entries in batches of 100 vectors.
func (s *PineconeStore) Upsert(ctx context.Context, entries []faq.Entry) error {
	if err := validateEntries(entries, s.dims); err != nil {
		return err
	}
	conn, err := s.index(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(entries); start += pineconeUpsertBatch {
		end := min(start+pineconeUpsertBatch, len(entries))
		vectors := make([]*pinecone.Vector, 0, end-start)
		for _, e := range entries[start:end] {
			md, err := structpb.NewStruct(e.Metadata.Fields())
			if err != nil {
				return fmt.Errorf("encode metadata for %s: %w", e.ID, err)
			}
			vectors = append(vectors, &pinecone.Vector{Id: e.ID, Values: e.Embedding, Metadata: md})
		}
		n, err := conn.UpsertVectors(ctx, vectors)
		if err != nil {
			return fmt.Errorf("pinecone upsert batch %d-%d: %w", start, end, err)
		}
		s.logger.Debug("pinecone batch upserted", "from", start, "to", end, "upserted", n)
	}
	return nil
}

// EnsureIndex creates a serverless cosine index when it does not exist and waits for it to be ready.
func (s *PineconeStore) EnsureIndex(ctx context.Context, dims int) error {
	if s.dims > 0 && dims != s.dims {
		return fmt.Errorf("pinecone store configured for %d dimensions, got %d", s.dims, dims)
	}
	idx, err := s.control.DescribeIndex(ctx, s.indexName)
	switch {
	case isPineconeNotFound(err):
		s.logger.Info("creating pinecone index", "index", s.indexName, "dimension", dims)
		_, err := s.control.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
			Name:      s.indexName,
			Dimension: int32(dims),
			Metric:    pinecone.Cosine,
			Cloud:     pinecone.Cloud(s.cloud),
			Region:    s.region,
		})
		if err != nil {
			return fmt.Errorf("create pinecone index: %w", err)
		}
		idx, err = s.waitReady(ctx)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("describe pinecone index: %w", err)
	default:
		if int(idx.Dimension) != dims {
			return fmt.Errorf("pinecone index %s has dimension %d, want %d", s.indexName, idx.Dimension, dims)
		}
	}
	s.mu.Lock()
	s.host = normalizeHost(idx.Host)
	s.mu.Unlock()
	return nil
}

// Count returns the total vector count reported by index stats.
func (s *PineconeStore) Count(ctx context.Context) (int, error) {
	conn, err := s.index(ctx)
	if err != nil {
		return 0, err
	}
	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("pinecone stats: %w", err)
	}
	return int(stats.TotalVectorCount), nil
}

// Close releases the data plane connection.
func (s *PineconeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// index returns the data plane connection, resolving the host on first use.
func (s *PineconeStore) index(ctx context.Context) (pineconeIndex, error) {
	s.mu.Lock()
	conn, host := s.conn, s.host
	s.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	if host == "" {
		idx, err := s.control.DescribeIndex(ctx, s.indexName)
		if err != nil {
			return nil, fmt.Errorf("describe pinecone index: %w", err)
		}
		if idx.Host == "" {
			return nil, fmt.Errorf("pinecone index %s has no host yet", s.indexName)
		}
		host = normalizeHost(idx.Host)
	}
	conn, err := s.connect(host, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("connect pinecone index %s: %w", s.indexName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = conn.Close()
		return s.conn, nil
	}
	s.host, s.conn = host, conn
	return conn, nil
}

func (s *PineconeStore) waitReady(ctx context.Context) (*pinecone.Index, error) {
	ctx, cancel := context.WithTimeout(ctx, pineconeReadyWait)
	defer cancel()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		idx, err := s.control.DescribeIndex(ctx, s.indexName)
		if err != nil && !isPineconeNotFound(err) {
			return nil, fmt.Errorf("describe pinecone index: %w", err)
		}
		if err == nil && idx.Status != nil && idx.Status.Ready {
			return idx, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for pinecone index %s: %w", s.indexName, ctx.Err())
		case <-ticker.C:
		}
	}
}

func isPineconeNotFound(err error) bool {
	var perr *pinecone.PineconeError
	return errors.As(err, &perr) && perr.Code == http.StatusNotFound
}

func normalizeHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return ""
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host
}

var _ Store = (*PineconeStore)(nil)
