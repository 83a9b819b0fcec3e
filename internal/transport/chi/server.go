package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	chiroute "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/solegrid/kickdex/internal/domain"
	"github.com/solegrid/kickdex/internal/domain/catalog/filter"
	"github.com/solegrid/kickdex/internal/imaging"
	classifyuc "github.com/solegrid/kickdex/internal/usecase/classify"
	healthuc "github.com/solegrid/kickdex/internal/usecase/health"
)

// Error response codes returned to API clients.
const (
	codeBadRequest             = "bad_request"
	codeValidationFailed       = "validation_failed"
	codeInvalidImage           = "invalid_image"
	codeImageTooLarge          = "image_too_large"
	codeInvalidQuery           = "invalid_query"
	codeInvalidFilter          = "invalid_filter"
	codeEmbeddingProviderError = "embedding_provider_error"
	codeIndexUnavailable       = "index_unavailable"
	codeRateLimited            = "rate_limited"
	codeInternalError          = "internal_error"
)

// Limits holds request validation limits, taken from config.
type Limits struct {
	DefaultTopK   int
	MaxTopK       int
	MaxImageBytes int
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the classification API over HTTP.
type Server struct {
	classify      *classifyuc.Service
	health        *healthuc.Service
	validator     *imaging.Validator
	limits        Limits
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	classify *classifyuc.Service,
	health *healthuc.Service,
	validator *imaging.Validator,
	limits Limits,
	logger *zap.Logger,
) *Server {
	if limits.DefaultTopK <= 0 {
		limits.DefaultTopK = 5
	}
	if limits.MaxTopK <= 0 {
		limits.MaxTopK = 20
	}
	if limits.MaxImageBytes <= 0 {
		limits.MaxImageBytes = imaging.DefaultMaxBytes
	}

	s := &Server{
		classify:  classify,
		health:    health,
		validator: validator,
		limits:    limits,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrImageTooLarge, http.StatusBadRequest, codeImageTooLarge),
		sentinelHandler(domain.ErrInvalidImage, http.StatusBadRequest, codeInvalidImage),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrInvalidFilter, http.StatusBadRequest, codeInvalidFilter),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, codeIndexUnavailable),
	}
	return s
}

// Routes mounts all API handlers on the router.
func (s *Server) Routes(r chiroute.Router) {
	r.Post("/v1/classify", s.ClassifyImage)
	r.Post("/v1/search", s.SearchText)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type searchRequest struct {
	Query   string         `json:"query"`
	TopK    *int           `json:"top_k,omitempty"`
	Filters *filterRequest `json:"filters,omitempty"`
}

type filterRequest struct {
	Brand    string   `json:"brand,omitempty"`
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
}

type resultItem struct {
	Rank            int      `json:"rank"`
	ID              string   `json:"id"`
	ModelName       string   `json:"model_name"`
	Brand           string   `json:"brand,omitempty"`
	Color           string   `json:"color,omitempty"`
	Size            string   `json:"size,omitempty"`
	Price           *float64 `json:"price,omitempty"`
	Description     string   `json:"description,omitempty"`
	ImagePath       string   `json:"image_path,omitempty"`
	CatalogID       string   `json:"catalog_id,omitempty"`
	Score           float64  `json:"score"`
	ConfidencePct   float64  `json:"confidence_pct"`
	ConfidenceLevel string   `json:"confidence_level"`
}

type imageInfo struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  int    `json:"bytes"`
}

type classifyResponse struct {
	Results      []resultItem `json:"results"`
	Total        int          `json:"total"`
	Degraded     bool         `json:"degraded,omitempty"`
	Image        *imageInfo   `json:"image,omitempty"`
	ProcessingMS float64      `json:"processing_time_ms"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClassifyImage handles POST /v1/classify (multipart image upload).
func (s *Server) ClassifyImage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	// One extra MiB of form overhead on top of the image limit.
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.limits.MaxImageBytes)+1<<20)

	if err := r.ParseMultipartForm(int64(s.limits.MaxImageBytes)); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, `Form file "image" is required`)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, int64(s.limits.MaxImageBytes)+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Failed to read image: "+err.Error())
		return
	}

	info, err := s.validator.Validate(image)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	topK, err := s.parseTopK(r.FormValue("top_k"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	filters, err := filtersFromValues(r.FormValue("brand"), r.FormValue("min_price"), r.FormValue("max_price"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidFilter, err.Error())
		return
	}

	outcome, err := s.classify.ClassifyImage(r.Context(), image, topK, filters)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := outcomeToResponse(outcome)
	resp.Image = &imageInfo{
		Format: info.Format,
		Width:  info.Width,
		Height: info.Height,
		Bytes:  info.Bytes,
	}
	resp.ProcessingMS = float64(time.Since(start).Microseconds()) / 1000
	writeJSON(w, http.StatusOK, resp)
}

// SearchText handles POST /v1/search (JSON text query).
func (s *Server) SearchText(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Query is required")
		return
	}

	topK := s.limits.DefaultTopK
	if req.TopK != nil {
		if *req.TopK <= 0 || *req.TopK > s.limits.MaxTopK {
			writeError(w, http.StatusBadRequest, codeValidationFailed,
				fmt.Sprintf("top_k must be between 1 and %d", s.limits.MaxTopK))
			return
		}
		topK = *req.TopK
	}

	filters, err := filtersFromRequest(req.Filters)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidFilter, err.Error())
		return
	}

	outcome, err := s.classify.SearchText(r.Context(), req.Query, topK, filters)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := outcomeToResponse(outcome)
	resp.ProcessingMS = float64(time.Since(start).Microseconds()) / 1000
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) parseTopK(raw string) (int, error) {
	if raw == "" {
		return s.limits.DefaultTopK, nil
	}
	topK, err := strconv.Atoi(raw)
	if err != nil || topK <= 0 || topK > s.limits.MaxTopK {
		return 0, fmt.Errorf("top_k must be between 1 and %d", s.limits.MaxTopK)
	}
	return topK, nil
}

func filtersFromRequest(f *filterRequest) (filter.Expression, error) {
	if f == nil {
		return filter.Expression{}, nil
	}
	return buildFilters(f.Brand, f.MinPrice, f.MaxPrice)
}

func filtersFromValues(brand, minPriceRaw, maxPriceRaw string) (filter.Expression, error) {
	minPrice, err := parseOptionalFloat("min_price", minPriceRaw)
	if err != nil {
		return filter.Expression{}, err
	}
	maxPrice, err := parseOptionalFloat("max_price", maxPriceRaw)
	if err != nil {
		return filter.Expression{}, err
	}
	return buildFilters(brand, minPrice, maxPrice)
}

func buildFilters(brand string, minPrice, maxPrice *float64) (filter.Expression, error) {
	var conditions []filter.Condition

	if brand != "" {
		cond, err := filter.NewMatch("brand", brand)
		if err != nil {
			return filter.Expression{}, fmt.Errorf("brand filter: %w", err)
		}
		conditions = append(conditions, cond)
	}

	if minPrice != nil || maxPrice != nil {
		rng, err := filter.NewRangeBounds(minPrice, maxPrice)
		if err != nil {
			return filter.Expression{}, fmt.Errorf("price filter: %w", err)
		}
		cond, err := filter.NewRange("price", rng)
		if err != nil {
			return filter.Expression{}, fmt.Errorf("price filter: %w", err)
		}
		conditions = append(conditions, cond)
	}

	if len(conditions) == 0 {
		return filter.Expression{}, nil
	}

	expr, err := filter.NewExpression(conditions...)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("build filters: %w", err)
	}
	return expr, nil
}

func parseOptionalFloat(name, raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", name)
	}
	return &v, nil
}

func outcomeToResponse(outcome classifyuc.Outcome) classifyResponse {
	items := make([]resultItem, len(outcome.Results))
	for i, rm := range outcome.Results {
		attrs := rm.Match.Attrs()
		items[i] = resultItem{
			Rank:            rm.Rank,
			ID:              rm.Match.ID(),
			ModelName:       rm.Match.ModelName(),
			Brand:           attrs.Brand,
			Color:           attrs.Color,
			Size:            attrs.Size,
			Price:           attrs.Price,
			Description:     attrs.Description,
			ImagePath:       attrs.ImagePath,
			CatalogID:       attrs.CatalogID,
			Score:           rm.Match.Score(),
			ConfidencePct:   rm.ConfidencePct,
			ConfidenceLevel: string(rm.ConfidenceLevel),
		}
	}
	return classifyResponse{
		Results:  items,
		Total:    len(items),
		Degraded: outcome.Degraded,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidImage,
		domain.ErrImageTooLarge,
		domain.ErrInvalidQuery,
		domain.ErrInvalidFilter,
		domain.ErrEmbeddingProviderError,
		domain.ErrIndexUnavailable,
		domain.ErrRateLimited,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
