package classify

import (
	"sort"

	"github.com/solegrid/kickdex/internal/domain/match"
)

// ConfidenceLevel buckets a similarity score for presentation.
type ConfidenceLevel string

// Confidence levels, highest first.
const (
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
)

// RankedMatch is a deduplicated hit decorated for presentation.
type RankedMatch struct {
	Rank            int
	ConfidencePct   float64
	ConfidenceLevel ConfidenceLevel
	Match           match.Match
}

// Rank sorts matches by score descending (stable, so an already-sorted input
// keeps its order) and assigns 1-based ranks with no gaps.
func Rank(matches []match.Match) []RankedMatch {
	sorted := make([]match.Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score() > sorted[j].Score()
	})

	ranked := make([]RankedMatch, len(sorted))
	for i := range sorted {
		ranked[i] = RankedMatch{
			Rank:            i + 1,
			ConfidencePct:   confidencePct(sorted[i].Score()),
			ConfidenceLevel: levelForScore(sorted[i].Score()),
			Match:           sorted[i],
		}
	}
	return ranked
}

// confidencePct converts a similarity score to a percentage clamped to [0,100].
func confidencePct(score float64) float64 {
	return max(0, min(100, score*100))
}

func levelForScore(score float64) ConfidenceLevel {
	pct := score * 100
	switch {
	case pct >= 85:
		return ConfidenceVeryHigh
	case pct >= 70:
		return ConfidenceHigh
	case pct >= 50:
		return ConfidenceMedium
	case pct >= 30:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}
