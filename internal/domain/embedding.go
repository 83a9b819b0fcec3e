package domain

import "context"

// QueryEmbedder is the shared text vectorization contract between layers.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) (EmbeddingResult, error)
}

// ImageEmbedder vectorizes raw image bytes.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// PadEmbedding zero-pads a vector to dim. CLIP ViT-L/14 emits 768 floats while
// the catalog index was built at 1024; padding keeps the two comparable.
func PadEmbedding(vec []float32, dim int) []float32 {
	if dim <= 0 || len(vec) >= dim {
		return vec
	}
	padded := make([]float32, dim)
	copy(padded, vec)
	return padded
}
