package faq

import (
	"errors"
	"fmt"
	"strings"
)

// EntryType tags knowledge records produced from FAQ pages.
const EntryType = "faq"

// Request encapsulates one user query.
type Request struct {
	Query string `json:"query"`
}

// Response is returned to the HTTP transport and to voice tool calls.
type Response struct {
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Sources    []Source `json:"sources"`
	Query      string   `json:"query"`
}

// Source references one grounding match in rank order.
type Source struct {
	Question string  `json:"question"`
	Section  string  `json:"section"`
	Score    float64 `json:"score"`
}

// Metadata is the typed record stored next to every embedding.
type Metadata struct {
	Section        string `json:"section"`
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	SourceURL      string `json:"source_url"`
	Type           string `json:"type"`
	Company        string `json:"company"`
	EmbeddingModel string `json:"embedding_model"`
}

// Entry is a knowledge record as written by ingestion.
type Entry struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"values"`
	Metadata  Metadata  `json:"metadata"`
}

// Match is a retrieved entry with its similarity score, higher is closer.
type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// ErrIncompleteMetadata marks records missing a question or an answer.
var ErrIncompleteMetadata = errors.New("metadata requires question and answer")

// Validate checks the required metadata fields.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Question) == "" || strings.TrimSpace(m.Answer) == "" {
		return ErrIncompleteMetadata
	}
	return nil
}

// Fields flattens metadata into the key/value bag used by remote indexes.
func (m Metadata) Fields() map[string]any {
	return map[string]any{
		"section":         m.Section,
		"question":        m.Question,
		"answer":          m.Answer,
		"source_url":      m.SourceURL,
		"type":            m.Type,
		"company":         m.Company,
		"embedding_model": m.EmbeddingModel,
	}
}

// DecodeMetadata reads an untyped metadata bag into a validated record.
func DecodeMetadata(raw map[string]any) (Metadata, error) {
	md := Metadata{
		Section:        stringField(raw, "section"),
		Question:       stringField(raw, "question"),
		Answer:         stringField(raw, "answer"),
		SourceURL:      stringField(raw, "source_url"),
		Type:           stringField(raw, "type"),
		Company:        stringField(raw, "company"),
		EmbeddingModel: stringField(raw, "embedding_model"),
	}
	if err := md.Validate(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

// Validate checks an entry against the expected embedding dimension.
func (e Entry) Validate(dims int) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("entry id cannot be empty")
	}
	if dims > 0 && len(e.Embedding) != dims {
		return fmt.Errorf("entry %s: embedding has %d dimensions, want %d", e.ID, len(e.Embedding), dims)
	}
	if err := e.Metadata.Validate(); err != nil {
		return fmt.Errorf("entry %s: %w", e.ID, err)
	}
	return nil
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
