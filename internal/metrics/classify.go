package metrics

import "github.com/prometheus/client_golang/prometheus"

// Classification Prometheus metrics.
var (
	ExpandIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kickdex",
			Name:      "expand_iterations",
			Help:      "Similarity search iterations per classification run",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	ExpandCandidatesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kickdex",
			Name:      "expand_candidates_fetched_total",
			Help:      "Total candidate vectors fetched from the similarity backend",
		},
	)

	ExpandUnderFulfilled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kickdex",
			Name:      "expand_underfulfilled_total",
			Help:      "Runs that ended with fewer unique models than requested",
		},
	)

	ClassifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kickdex",
			Name:      "classify_duration_seconds",
			Help:      "End-to-end classification duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"}, // "image" / "text"
	)
)

var classifyMetricsRegistered bool

// RegisterClassifyMetrics registers classification metrics. Must be called once from main.
func RegisterClassifyMetrics() {
	if classifyMetricsRegistered {
		return
	}
	prometheus.MustRegister(ExpandIterations)
	prometheus.MustRegister(ExpandCandidatesFetched)
	prometheus.MustRegister(ExpandUnderFulfilled)
	prometheus.MustRegister(ClassifyDuration)
	classifyMetricsRegistered = true
}
