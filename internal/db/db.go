package db

import (
	"context"
	"time"

	"github.com/solegrid/kickdex/internal/domain/catalog/filter"
)

// Store is the database facade for the Redis-backed catalog index.
// Consumers depend on the narrow sub-interfaces.
type Store interface {
	Pinger
	KVStore
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations (embedding cache).
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Searcher runs KNN vector queries against an FT index.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}

// KNNQuery describes one vector similarity query.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	Filters      filter.Expression
	ReturnFields []string
}

// SearchEntry is one raw hit: the storage key, the similarity score, and the
// flat field map returned by the index.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// SearchResult is the raw outcome of one FT.SEARCH call.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}
