package faq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeMetadata(t *testing.T) {
	md, err := DecodeMetadata(map[string]any{
		"section":         "Fees",
		"question":        "Is there an annual fee?",
		"answer":          "No.",
		"source_url":      "https://example.com/faq",
		"type":            "faq",
		"embedding_model": "text-embedding-3-small",
	})
	require.NoError(t, err)
	require.Equal(t, "Fees", md.Section)
	require.Equal(t, "https://example.com/faq", md.SourceURL)
	require.Equal(t, "", md.Company)

	_, err = DecodeMetadata(map[string]any{"question": "only a question"})
	require.ErrorIs(t, err, ErrIncompleteMetadata)

	_, err = DecodeMetadata(nil)
	require.ErrorIs(t, err, ErrIncompleteMetadata)
}

func TestMetadataFieldsRoundTrip(t *testing.T) {
	md := Metadata{Section: "s", Question: "q", Answer: "a", Type: EntryType}
	decoded, err := DecodeMetadata(md.Fields())
	require.NoError(t, err)
	require.Equal(t, md, decoded)
}

func TestEntryValidate(t *testing.T) {
	entry := Entry{ID: "faq_1", Embedding: []float32{1, 2, 3}, Metadata: Metadata{Question: "q", Answer: "a"}}
	require.NoError(t, entry.Validate(3))
	require.ErrorContains(t, entry.Validate(4), "want 4")

	entry.ID = ""
	require.Error(t, entry.Validate(3))

	entry.ID = "faq_1"
	entry.Metadata.Answer = " "
	require.ErrorIs(t, entry.Validate(3), ErrIncompleteMetadata)
}
