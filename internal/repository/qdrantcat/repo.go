package qdrantcat

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/solegrid/kickdex/internal/domain"
	"github.com/solegrid/kickdex/internal/domain/catalog/filter"
	"github.com/solegrid/kickdex/internal/domain/match"
)

// querier is the narrow slice of the Qdrant client needed for search (ISP).
type querier interface {
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
}

// Config holds connection parameters for a Qdrant catalog.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// Repo is the Qdrant-backed similarity source for the sneaker catalog.
type Repo struct {
	api        querier
	collection string
}

// Connect dials Qdrant and returns a catalog repository.
func Connect(cfg Config) (*Repo, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return New(client, cfg.Collection), nil
}

// New creates a repository over an existing client.
func New(api querier, collection string) *Repo {
	return &Repo{api: api, collection: collection}
}

// Search runs one KNN query and maps the scored points to catalog matches.
// An empty result means the index is exhausted under the filters, not an error.
func (r *Repo) Search(
	ctx context.Context, vector []float32, topK int, filters filter.Expression,
) ([]match.Match, error) {
	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if f := buildFilter(filters); f != nil {
		req.Filter = f
	}

	points, err := r.api.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", domain.ErrIndexUnavailable, r.collection, err)
	}

	matches := make([]match.Match, 0, len(points))
	for _, p := range points {
		matches = append(matches, match.New(
			pointID(p.Id),
			clampScore(float64(p.Score)),
			attrsFromPayload(p.Payload),
		))
	}
	return matches, nil
}

// HealthCheck verifies Qdrant availability.
func (r *Repo) HealthCheck(ctx context.Context) error {
	if _, err := r.api.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// buildFilter converts the conjunctive filter expression into a Qdrant filter.
func buildFilter(expr filter.Expression) *qdrant.Filter {
	if expr.IsEmpty() {
		return nil
	}

	must := make([]*qdrant.Condition, 0, len(expr.Conditions()))
	for _, c := range expr.Conditions() {
		switch {
		case c.IsMatch():
			must = append(must, qdrant.NewMatch(c.Key(), c.Match()))
		case c.IsRange():
			must = append(must, qdrant.NewRange(c.Key(), &qdrant.Range{
				Gte: c.Range().GTE(),
				Lte: c.Range().LTE(),
			}))
		}
	}
	return &qdrant.Filter{Must: must}
}

// pointID extracts a string identifier from Qdrant's PointId type.
func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	case *qdrant.PointId_Uuid:
		return v.Uuid
	default:
		return ""
	}
}

// attrsFromPayload maps a Qdrant payload to typed attributes. Missing or
// wrongly-typed fields stay zero-valued.
func attrsFromPayload(payload map[string]*qdrant.Value) match.Attributes {
	attrs := match.Attributes{
		ModelName:   stringValue(payload["model_name"]),
		Brand:       stringValue(payload["brand"]),
		Color:       stringValue(payload["color"]),
		Size:        stringValue(payload["size"]),
		Description: stringValue(payload["description"]),
		ImagePath:   stringValue(payload["image_path"]),
		CatalogID:   stringValue(payload["catalog_id"]),
	}
	if price, ok := floatValue(payload["price"]); ok {
		attrs.Price = &price
	}
	return attrs
}

func stringValue(v *qdrant.Value) string {
	if v == nil {
		return ""
	}
	if s, ok := v.Kind.(*qdrant.Value_StringValue); ok {
		return s.StringValue
	}
	return ""
}

func floatValue(v *qdrant.Value) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue, true
	case *qdrant.Value_IntegerValue:
		return float64(val.IntegerValue), true
	default:
		return 0, false
	}
}

func clampScore(s float64) float64 {
	return max(0, min(1, s))
}
