package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/solegrid/kickdex/internal/domain"
	"github.com/solegrid/kickdex/internal/domain/catalog/filter"
	"github.com/solegrid/kickdex/internal/metrics"
)

// Outcome is the result of one classification run. Degraded marks a run where
// the similarity backend failed mid-expansion but partial results survived.
type Outcome struct {
	Results  []RankedMatch
	Degraded bool
}

// Service classifies sneaker images and text queries against the vector catalog.
type Service struct {
	expander ModelExpander
	imageEmb ImageEmbedder
	queryEmb QueryEmbedder
	logger   *zap.Logger
}

// New creates a classification service. All collaborators are injected
// explicitly; none live in package state.
func New(expander ModelExpander, imageEmb ImageEmbedder, queryEmb QueryEmbedder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{expander: expander, imageEmb: imageEmb, queryEmb: queryEmb, logger: logger}
}

// ClassifyImage embeds the image and returns up to targetUnique distinct
// sneaker models, ranked by similarity.
func (s *Service) ClassifyImage(
	ctx context.Context, image []byte, targetUnique int, filters filter.Expression,
) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.ClassifyDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	}()

	emb, err := s.imageEmb.EmbedImage(ctx, image)
	if err != nil {
		return Outcome{}, fmt.Errorf("embed image: %w", err)
	}

	return s.findUniqueModels(ctx, emb.Embedding, targetUnique, filters)
}

// SearchText embeds the text query and returns up to targetUnique distinct
// sneaker models, ranked by similarity.
func (s *Service) SearchText(
	ctx context.Context, query string, targetUnique int, filters filter.Expression,
) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.ClassifyDuration.WithLabelValues("text").Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(query) == "" {
		return Outcome{}, fmt.Errorf("empty query: %w", domain.ErrInvalidQuery)
	}

	emb, err := s.queryEmb.EmbedText(ctx, query)
	if err != nil {
		return Outcome{}, fmt.Errorf("embed query: %w", err)
	}

	return s.findUniqueModels(ctx, emb.Embedding, targetUnique, filters)
}

// findUniqueModels runs the expander and ranks its output. A backend failure
// with zero accumulated models propagates; a failure after partial progress
// degrades the response instead of discarding what was found.
func (s *Service) findUniqueModels(
	ctx context.Context, vector []float32, targetUnique int, filters filter.Expression,
) (Outcome, error) {
	found, err := s.expander.Expand(ctx, vector, targetUnique, filters)
	if err != nil {
		if len(found) == 0 {
			return Outcome{}, fmt.Errorf("expand unique models: %w", err)
		}
		s.logger.Warn("similarity backend failed mid-expansion, returning partial results",
			zap.Int("partial", len(found)),
			zap.Int("target", targetUnique),
			zap.Error(err),
		)
		return Outcome{Results: Rank(found), Degraded: true}, nil
	}

	return Outcome{Results: Rank(found)}, nil
}
