package faq

// Config holds runtime knobs for the answer pipeline.
type Config struct {
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	Prompt         string
	FallbackAnswer string
	TopK           int
	MaxAnswerWords int
}
