package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the similarity index is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	index    IndexChecker
	textEmb  EmbeddingChecker
	imageEmb EmbeddingChecker
}

// New creates a Service. Embedding checkers can be nil.
func New(index IndexChecker, textEmb, imageEmb EmbeddingChecker) *Service {
	return &Service{index: index, textEmb: textEmb, imageEmb: imageEmb}
}

// Check runs health checks against all components. The index is the hard
// dependency: classification cannot work without it, so its failure makes
// the whole service unhealthy. Embedding failures only degrade.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	indexDown := false
	if err := s.index.HealthCheck(ctx); err != nil {
		checks["index"] = CheckError
		indexDown = true
	} else {
		checks["index"] = CheckOK
	}

	if s.textEmb != nil {
		if err := s.textEmb.HealthCheck(ctx); err != nil {
			checks["text_embedding"] = CheckError
		} else {
			checks["text_embedding"] = CheckOK
		}
	}

	if s.imageEmb != nil {
		if err := s.imageEmb.HealthCheck(ctx); err != nil {
			checks["image_embedding"] = CheckError
		} else {
			checks["image_embedding"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if indexDown {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
