package expand

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/solegrid/kickdex/internal/domain/catalog/filter"
	"github.com/solegrid/kickdex/internal/domain/match"
	"github.com/solegrid/kickdex/internal/metrics"
)

// Config holds the expansion tunables. Zero fields fall back to defaults;
// the exact constants are configuration, not semantics.
type Config struct {
	// SearchMultiplier sets the initial fetch size: target × multiplier.
	SearchMultiplier int
	// MaxFetchSize caps the topK of any single backend query.
	MaxFetchSize int
	// MaxIterations caps the number of backend queries per run.
	MaxIterations int
	// BatchIncrement is the linear fetch-size growth step after partial progress.
	BatchIncrement int
}

// Defaults for Config fields.
const (
	DefaultSearchMultiplier = 3
	DefaultMaxFetchSize     = 100
	DefaultMaxIterations    = 5
	DefaultBatchIncrement   = 20
)

func (c Config) withDefaults() Config {
	if c.SearchMultiplier <= 0 {
		c.SearchMultiplier = DefaultSearchMultiplier
	}
	if c.MaxFetchSize <= 0 {
		c.MaxFetchSize = DefaultMaxFetchSize
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.BatchIncrement <= 0 {
		c.BatchIncrement = DefaultBatchIncrement
	}
	return c
}

// Expander widens similarity queries until enough distinct sneaker models are
// collected. It keeps, per model, the best-scoring hit seen so far, so the
// final ranking reflects the best known score for each represented model.
//
// Growth policy: an iteration that found zero new models doubles the fetch
// size (the near neighborhood is saturated with duplicates); an iteration with
// partial progress grows linearly to avoid overshooting query cost.
type Expander struct {
	source Source
	cfg    Config
	logger *zap.Logger
}

// New creates an expander over a similarity source.
func New(source Source, cfg Config, logger *zap.Logger) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{source: source, cfg: cfg.withDefaults(), logger: logger}
}

// entry pairs a kept match with its first-seen sequence so that final sorting
// breaks score ties toward the earlier-seen (higher-ranked) hit.
type entry struct {
	m   match.Match
	seq int
}

// Expand collects up to targetUnique distinct sneaker models for the query
// vector. Fewer than targetUnique results is a normal outcome once the
// iteration or fetch-size budget is exhausted, never an error by itself.
//
// A backend failure aborts further iterations; the groups accumulated before
// the failure are returned alongside the error so the caller can degrade.
func (e *Expander) Expand(
	ctx context.Context, vector []float32, targetUnique int, filters filter.Expression,
) ([]match.Match, error) {
	if targetUnique <= 0 {
		return nil, fmt.Errorf("target unique count must be positive, got %d", targetUnique)
	}

	groups := make(map[string]entry)
	fetchSize := min(targetUnique*e.cfg.SearchMultiplier, e.cfg.MaxFetchSize)
	iteration := 0
	seq := 0

	var runErr error

	for len(groups) < targetUnique && iteration < e.cfg.MaxIterations {
		iteration++

		hits, err := e.source.Search(ctx, vector, fetchSize, filters)
		if err != nil {
			runErr = fmt.Errorf("similarity search iteration %d: %w", iteration, err)
			break
		}
		if len(hits) == 0 {
			// Index exhausted or filters too restrictive.
			e.logger.Debug("similarity source exhausted",
				zap.Int("iteration", iteration),
				zap.Int("unique_models", len(groups)),
			)
			break
		}

		metrics.ExpandCandidatesFetched.Add(float64(len(hits)))

		newModels := 0
		for i := range hits {
			h := hits[i]
			if !h.HasModel() {
				continue
			}
			prev, seen := groups[h.ModelName()]
			switch {
			case !seen:
				groups[h.ModelName()] = entry{m: h, seq: seq}
				seq++
				newModels++
			case h.Score() > prev.m.Score():
				// Keep-best-per-model; the first-seen sequence stays.
				groups[h.ModelName()] = entry{m: h, seq: prev.seq}
			}
		}

		e.logger.Debug("similarity expansion iteration",
			zap.Int("iteration", iteration),
			zap.Int("fetch_size", fetchSize),
			zap.Int("hits", len(hits)),
			zap.Int("new_models", newModels),
			zap.Int("unique_models", len(groups)),
		)

		if len(groups) >= targetUnique {
			break
		}

		if newModels == 0 {
			if fetchSize >= e.cfg.MaxFetchSize {
				// Widening can't go further; return what we have.
				break
			}
			fetchSize = min(fetchSize*2, e.cfg.MaxFetchSize)
		} else {
			fetchSize = min(fetchSize+e.cfg.BatchIncrement, e.cfg.MaxFetchSize)
		}
	}

	metrics.ExpandIterations.Observe(float64(iteration))

	results := rankGroups(groups, targetUnique)
	if len(results) < targetUnique {
		metrics.ExpandUnderFulfilled.Inc()
	}

	return results, runErr
}

// rankGroups orders kept matches by score descending (ties toward the
// earlier-seen hit) and truncates to target.
func rankGroups(groups map[string]entry, target int) []match.Match {
	entries := make([]entry, 0, len(groups))
	for _, en := range groups {
		entries = append(entries, en)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].m.Score() != entries[j].m.Score() {
			return entries[i].m.Score() > entries[j].m.Score()
		}
		return entries[i].seq < entries[j].seq
	})

	if len(entries) > target {
		entries = entries[:target]
	}

	results := make([]match.Match, len(entries))
	for i, en := range entries {
		results[i] = en.m
	}
	return results
}
