package expand

import (
	"context"

	"github.com/solegrid/kickdex/internal/domain/catalog/filter"
	"github.com/solegrid/kickdex/internal/domain/match"
)

// Source is the similarity backend contract. Results come back ordered by
// descending score, may number fewer than topK, and an empty slice means the
// index is exhausted under the given filters — not an error.
type Source interface {
	Search(
		ctx context.Context, vector []float32, topK int, filters filter.Expression,
	) ([]match.Match, error)
}
