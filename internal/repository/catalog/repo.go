package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/solegrid/kickdex/internal/db"
	"github.com/solegrid/kickdex/internal/domain"
	"github.com/solegrid/kickdex/internal/domain/catalog/filter"
	"github.com/solegrid/kickdex/internal/domain/match"
)

// Hash field names of an indexed sneaker vector.
const (
	fieldModelName   = "model_name"
	fieldBrand       = "brand"
	fieldColor       = "color"
	fieldSize        = "size"
	fieldPrice       = "price"
	fieldDescription = "description"
	fieldImagePath   = "image_path"
	fieldCatalogID   = "catalog_id"
)

var returnFields = []string{
	"__vector_score",
	fieldModelName, fieldBrand, fieldColor, fieldSize,
	fieldPrice, fieldDescription, fieldImagePath, fieldCatalogID,
}

// store is the consumer interface for similarity search (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	Ping(ctx context.Context) error
}

// Repo is the Redis-backed similarity source for the sneaker catalog.
type Repo struct {
	store      store
	collection string
}

// New creates a catalog similarity repository over the named collection.
func New(s store, collection string) *Repo {
	return &Repo{store: s, collection: collection}
}

// Search runs one KNN query and maps the hits to catalog matches.
// An empty result means the index is exhausted under the filters, not an error.
func (r *Repo) Search(
	ctx context.Context, vector []float32, topK int, filters filter.Expression,
) ([]match.Match, error) {
	indexName := fmt.Sprintf("%s%s:idx", domain.KeyPrefix, r.collection)

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName,
		Vector:       vector,
		K:            topK,
		Filters:      filters,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search knn %s: %w", domain.ErrIndexUnavailable, r.collection, err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	prefix := fmt.Sprintf("%s%s:", domain.KeyPrefix, r.collection)
	matches := make([]match.Match, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		id := strings.TrimPrefix(entry.Key, prefix)
		matches = append(matches, match.New(id, entry.Score, attrsFromFields(entry.Fields)))
	}
	return matches, nil
}

// HealthCheck verifies Redis availability.
func (r *Repo) HealthCheck(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// attrsFromFields maps flat hash fields to typed attributes. Missing fields
// stay zero-valued; an unparsable price is treated as absent.
func attrsFromFields(fields map[string]string) match.Attributes {
	attrs := match.Attributes{
		ModelName:   fields[fieldModelName],
		Brand:       fields[fieldBrand],
		Color:       fields[fieldColor],
		Size:        fields[fieldSize],
		Description: fields[fieldDescription],
		ImagePath:   fields[fieldImagePath],
		CatalogID:   fields[fieldCatalogID],
	}
	if raw, ok := fields[fieldPrice]; ok {
		if price, err := strconv.ParseFloat(raw, 64); err == nil {
			attrs.Price = &price
		}
	}
	return attrs
}
