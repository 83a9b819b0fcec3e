package expand

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/solegrid/kickdex/internal/domain/catalog/filter"
	"github.com/solegrid/kickdex/internal/domain/match"
)

// --- Mocks ---

// mockSource replays scripted responses and records the topK of every call.
type mockSource struct {
	responses [][]match.Match
	errs      []error
	topKs     []int
}

func (m *mockSource) Search(
	_ context.Context, _ []float32, topK int, _ filter.Expression,
) ([]match.Match, error) {
	call := len(m.topKs)
	m.topKs = append(m.topKs, topK)

	if call < len(m.errs) && m.errs[call] != nil {
		return nil, m.errs[call]
	}
	if call < len(m.responses) {
		return m.responses[call], nil
	}
	return nil, nil
}

func mk(id, model string, score float64) match.Match {
	return match.New(id, score, match.Attributes{ModelName: model, Brand: "Nike"})
}

// spread returns n hits across k distinct models, scores descending from top.
func spread(n, k int, top float64) []match.Match {
	hits := make([]match.Match, n)
	for i := range hits {
		model := string(rune('A' + i%k))
		hits[i] = mk(model+"-"+string(rune('0'+i/k)), "model-"+model, top-float64(i)*0.01)
	}
	return hits
}

func newTestExpander(src Source, cfg Config) *Expander {
	return New(src, cfg, zap.NewNop())
}

func testVector() []float32 { return []float32{0.1, 0.2, 0.3} }

// --- Tests ---

func TestExpand_TargetMetOnFirstIteration(t *testing.T) {
	src := &mockSource{responses: [][]match.Match{spread(5, 5, 0.9)}}
	e := newTestExpander(src, Config{})

	results, err := e.Expand(context.Background(), testVector(), 5, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if len(src.topKs) != 1 {
		t.Errorf("expected exactly 1 backend call, got %d", len(src.topKs))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score() > results[i-1].Score() {
			t.Errorf("results not sorted by score descending at %d", i)
		}
	}
}

func TestExpand_StagnationDoublesFetchSize(t *testing.T) {
	// First call returns 15 hits spanning only 3 models (progress: linear
	// growth); the second call repeats the same 3 models (stagnation:
	// doubling); the third hits an exhausted index.
	src := &mockSource{responses: [][]match.Match{
		spread(15, 3, 0.9),
		spread(15, 3, 0.9),
		{},
	}}
	e := newTestExpander(src, Config{SearchMultiplier: 3, MaxFetchSize: 100, MaxIterations: 5})

	results, err := e.Expand(context.Background(), testVector(), 5, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int{15, 35, 70}
	if len(src.topKs) != len(want) {
		t.Fatalf("expected %d calls, got %d (%v)", len(want), len(src.topKs), src.topKs)
	}
	for i, w := range want {
		if src.topKs[i] != w {
			t.Errorf("call %d topK = %d, want %d", i+1, src.topKs[i], w)
		}
	}
	if len(results) != 3 {
		t.Errorf("expected 3 unique models, got %d", len(results))
	}
}

func TestExpand_LinearGrowthOnPartialProgress(t *testing.T) {
	// Each iteration finds one new model: growth should be linear.
	src := &mockSource{responses: [][]match.Match{
		spread(15, 3, 0.9),
		spread(16, 4, 0.9),
		spread(17, 5, 0.9),
	}}
	e := newTestExpander(src, Config{SearchMultiplier: 3, BatchIncrement: 20, MaxFetchSize: 100})

	results, err := e.Expand(context.Background(), testVector(), 5, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}

	want := []int{15, 35, 55}
	if len(src.topKs) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(src.topKs))
	}
	for i, w := range want {
		if src.topKs[i] != w {
			t.Errorf("call %d topK = %d, want %d", i+1, src.topKs[i], w)
		}
	}
}

func TestExpand_EmptyResponseStopsImmediately(t *testing.T) {
	src := &mockSource{responses: [][]match.Match{{}}}
	e := newTestExpander(src, Config{})

	results, err := e.Expand(context.Background(), testVector(), 5, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result, got %d", len(results))
	}
	if len(src.topKs) != 1 {
		t.Errorf("expected exactly 1 call after exhaustion, got %d", len(src.topKs))
	}
}

func TestExpand_KeepsBestScorePerModel(t *testing.T) {
	// The same model shows up in two iterations with different scores; the
	// higher score must win regardless of arrival order.
	tests := []struct {
		name   string
		first  float64
		second float64
	}{
		{"better score arrives later", 0.76, 0.81},
		{"better score arrives first", 0.81, 0.76},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &mockSource{responses: [][]match.Match{
				{mk("v1", "Air Max 90", tt.first)},
				{mk("v2", "Air Max 90", tt.second)},
				{},
			}}
			e := newTestExpander(src, Config{})

			results, err := e.Expand(context.Background(), testVector(), 2, filter.Expression{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(results) != 1 {
				t.Fatalf("expected 1 unique model, got %d", len(results))
			}
			if results[0].Score() != 0.81 {
				t.Errorf("kept score = %f, want 0.81", results[0].Score())
			}
		})
	}
}

func TestExpand_TieKeepsEarlierSeen(t *testing.T) {
	src := &mockSource{responses: [][]match.Match{
		{mk("first", "Air Max 90", 0.8)},
		{mk("later", "Air Max 90", 0.8)},
		{},
	}}
	e := newTestExpander(src, Config{})

	results, err := e.Expand(context.Background(), testVector(), 2, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].ID() != "first" {
		t.Errorf("tie kept %q, want the earlier-seen hit", results[0].ID())
	}
}

func TestExpand_SkipsHitsWithoutModelName(t *testing.T) {
	src := &mockSource{responses: [][]match.Match{
		{
			match.New("v1", 0.9, match.Attributes{Brand: "Nike"}), // no model name
			mk("v2", "Dunk Low", 0.8),
		},
		{},
	}}
	e := newTestExpander(src, Config{})

	results, err := e.Expand(context.Background(), testVector(), 2, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ModelName() != "Dunk Low" {
		t.Errorf("kept %q", results[0].ModelName())
	}
}

func TestExpand_BoundedIterations(t *testing.T) {
	// The source keeps returning the same single model forever.
	responses := make([][]match.Match, 10)
	for i := range responses {
		responses[i] = []match.Match{mk("v1", "Samba", 0.7)}
	}
	src := &mockSource{responses: responses}
	e := newTestExpander(src, Config{MaxIterations: 4, MaxFetchSize: 1 << 20})

	if _, err := e.Expand(context.Background(), testVector(), 5, filter.Expression{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.topKs) > 4 {
		t.Errorf("made %d calls, want at most 4", len(src.topKs))
	}
}

func TestExpand_BoundedFetchSize(t *testing.T) {
	responses := make([][]match.Match, 10)
	for i := range responses {
		responses[i] = []match.Match{mk("v1", "Samba", 0.7)}
	}
	src := &mockSource{responses: responses}
	e := newTestExpander(src, Config{MaxFetchSize: 40, MaxIterations: 10})

	if _, err := e.Expand(context.Background(), testVector(), 20, filter.Expression{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, k := range src.topKs {
		if k > 40 {
			t.Errorf("call %d requested topK=%d, exceeds max fetch size 40", i+1, k)
		}
	}
}

func TestExpand_StopsWhenStagnantAtCeiling(t *testing.T) {
	// Fetch size starts at the ceiling (target x multiplier > max), the first
	// stagnant iteration after initial discovery must end the run.
	src := &mockSource{responses: [][]match.Match{
		spread(30, 2, 0.9),
		spread(30, 2, 0.9),
		spread(30, 2, 0.9),
	}}
	e := newTestExpander(src, Config{SearchMultiplier: 3, MaxFetchSize: 30, MaxIterations: 10})

	results, err := e.Expand(context.Background(), testVector(), 20, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected the 2 discovered models, got %d", len(results))
	}
	// Call 1 discovers 2 models; call 2 is stagnant with the fetch size
	// already capped, so no third call happens.
	if len(src.topKs) != 2 {
		t.Errorf("expected 2 calls, got %d", len(src.topKs))
	}
}

func TestExpand_SourceFailureReturnsPartial(t *testing.T) {
	backendErr := errors.New("index timeout")
	src := &mockSource{
		responses: [][]match.Match{spread(6, 2, 0.9), nil},
		errs:      []error{nil, backendErr},
	}
	e := newTestExpander(src, Config{})

	results, err := e.Expand(context.Background(), testVector(), 5, filter.Expression{})
	if err == nil {
		t.Fatal("expected the backend error to propagate")
	}
	if !errors.Is(err, backendErr) {
		t.Errorf("error = %v, want wrapped backend error", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 partial results, got %d", len(results))
	}
	if len(src.topKs) != 2 {
		t.Errorf("expected no further calls after failure, got %d", len(src.topKs))
	}
}

func TestExpand_TruncatesToTarget(t *testing.T) {
	src := &mockSource{responses: [][]match.Match{spread(30, 10, 0.9)}}
	e := newTestExpander(src, Config{})

	results, err := e.Expand(context.Background(), testVector(), 3, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// The three best-scoring models must survive the cut.
	for i := 1; i < len(results); i++ {
		if results[i].Score() > results[i-1].Score() {
			t.Errorf("results not sorted by score descending at %d", i)
		}
	}
}

func TestExpand_InvalidTarget(t *testing.T) {
	e := newTestExpander(&mockSource{}, Config{})
	for _, target := range []int{0, -1} {
		if _, err := e.Expand(context.Background(), testVector(), target, filter.Expression{}); err == nil {
			t.Errorf("expected error for target %d", target)
		}
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.SearchMultiplier != DefaultSearchMultiplier {
		t.Errorf("SearchMultiplier = %d", cfg.SearchMultiplier)
	}
	if cfg.MaxFetchSize != DefaultMaxFetchSize {
		t.Errorf("MaxFetchSize = %d", cfg.MaxFetchSize)
	}
	if cfg.MaxIterations != DefaultMaxIterations {
		t.Errorf("MaxIterations = %d", cfg.MaxIterations)
	}
	if cfg.BatchIncrement != DefaultBatchIncrement {
		t.Errorf("BatchIncrement = %d", cfg.BatchIncrement)
	}
}
