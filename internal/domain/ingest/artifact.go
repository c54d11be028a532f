package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yanqian/voice-faq/internal/domain/faq"
)

// ArtifactStore reads and writes named ingestion artifacts (records and vectors files).
type ArtifactStore interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
}

// EncodeVectors renders entries as the vectors artifact: [{id, values, metadata}].
func EncodeVectors(entries []faq.Entry) ([]byte, error) {
	if entries == nil {
		entries = []faq.Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode vectors: %w", err)
	}
	return data, nil
}

// DecodeVectors parses a vectors artifact.
func DecodeVectors(data []byte) ([]faq.Entry, error) {
	var entries []faq.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode vectors: %w", err)
	}
	return entries, nil
}
