package jina

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/solegrid/kickdex/internal/domain"
	"github.com/solegrid/kickdex/internal/metrics"
)

const defaultBaseURL = "https://api.jina.ai/v1"

// Embedder vectorizes images through the Jina CLIP embeddings API.
// The API is OpenAI-shaped but accepts image inputs, which the usual
// OpenAI clients cannot send, so requests are built by hand.
type Embedder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	provider   string
	logger     *zap.Logger
}

// Config holds the image embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Provider   string
	Logger     *zap.Logger
}

// NewEmbedder creates a Jina CLIP image embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Embedder{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		provider:   cfg.Provider,
		logger:     cfg.Logger,
	}
}

type embeddingRequest struct {
	Model string           `json:"model"`
	Input []embeddingInput `json:"input"`
}

type embeddingInput struct {
	Image string `json:"image"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Error  struct {
		Message string `json:"message"`
	} `json:"error"`
}

// EmbedImage implements domain.ImageEmbedder. The image is sent base64-encoded
// and the resulting vector is zero-padded to the configured dimensionality.
func (e *Embedder) EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error) {
	body, err := json.Marshal(embeddingRequest{
		Model: e.model,
		Input: []embeddingInput{{Image: base64.StdEncoding.EncodeToString(image)}},
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	start := time.Now()

	resp, err := e.httpClient.Do(req)

	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "transport_error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("embedding request failed: %w", domain.ErrEmbeddingProviderError)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "read_error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("read embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "api_error").Inc()
		return domain.EmbeddingResult{}, parseAPIError(resp.StatusCode, raw)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "decode_error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("decode embedding response: %w", domain.ErrEmbeddingProviderError)
	}
	if len(parsed.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, "empty_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.model).Observe(duration.Seconds())

	totalTokens := parsed.Usage.TotalTokens
	promptTokens := parsed.Usage.PromptTokens
	if totalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, e.model, "prompt").Add(float64(promptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, e.model, "total").Add(float64(totalTokens))
	}

	return domain.EmbeddingResult{
		Embedding:    domain.PadEmbedding(parsed.Data[0].Embedding, e.dimensions),
		PromptTokens: promptTokens,
		TotalTokens:  totalTokens,
	}, nil
}

// HealthCheck verifies provider configuration. The Jina API has no free
// status endpoint, so only the presence of credentials is checked.
func (e *Embedder) HealthCheck(_ context.Context) error {
	if e.apiKey == "" {
		return fmt.Errorf("image embedding provider: missing API key")
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrEmbeddingProviderError for correct 502 mapping.
func parseAPIError(status int, body []byte) error {
	wrap := domain.ErrEmbeddingProviderError

	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Detail != "" {
			return fmt.Errorf("image embedding API error %d: %s: %w", status, parsed.Detail, wrap)
		}
		if parsed.Error.Message != "" {
			return fmt.Errorf("image embedding API error %d: %s: %w", status, parsed.Error.Message, wrap)
		}
	}
	return fmt.Errorf("image embedding API error %d: %s: %w", status, string(body), wrap)
}
