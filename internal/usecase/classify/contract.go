package classify

import (
	"context"

	"github.com/solegrid/kickdex/internal/domain"
	"github.com/solegrid/kickdex/internal/domain/catalog/filter"
	"github.com/solegrid/kickdex/internal/domain/match"
)

// ModelExpander collects distinct sneaker models for a query vector.
type ModelExpander interface {
	Expand(
		ctx context.Context, vector []float32, targetUnique int, filters filter.Expression,
	) ([]match.Match, error)
}

// ImageEmbedder vectorizes raw image bytes.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error)
}

// QueryEmbedder vectorizes text queries.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
