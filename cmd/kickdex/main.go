package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/solegrid/kickdex/internal/config"
	dbRedis "github.com/solegrid/kickdex/internal/db/redis"
	"github.com/solegrid/kickdex/internal/domain"
	"github.com/solegrid/kickdex/internal/imaging"
	logpkg "github.com/solegrid/kickdex/internal/logger"
	"github.com/solegrid/kickdex/internal/metrics"
	catalogrepo "github.com/solegrid/kickdex/internal/repository/catalog"
	"github.com/solegrid/kickdex/internal/repository/embcache"
	qdrantrepo "github.com/solegrid/kickdex/internal/repository/qdrantcat"
	chiTransport "github.com/solegrid/kickdex/internal/transport/chi"
	jinaEmb "github.com/solegrid/kickdex/internal/transport/jina"
	openaiEmb "github.com/solegrid/kickdex/internal/transport/openai"
	classifyuc "github.com/solegrid/kickdex/internal/usecase/classify"
	expanduc "github.com/solegrid/kickdex/internal/usecase/expand"
	healthuc "github.com/solegrid/kickdex/internal/usecase/health"
	"github.com/solegrid/kickdex/internal/version"
)

// catalogSource is what both index drivers provide to the expander and health service.
type catalogSource interface {
	expanduc.Source
	healthuc.IndexChecker
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kickdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_driver", cfg.Index.Driver),
		zap.String("collection", cfg.Index.Collection),
	)

	// Register Prometheus metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterClassifyMetrics()

	ctx := context.Background()

	// Create the similarity source based on driver
	var source catalogSource
	var kvStore *dbRedis.Store
	switch cfg.Index.Driver {
	case "redis":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Index.Addrs,
			Password: cfg.Index.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer store.Close()

		readiness := time.Duration(cfg.Index.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}

		kvStore = store
		source = catalogrepo.New(store, cfg.Index.Collection)
	case "qdrant":
		repo, err := qdrantrepo.Connect(qdrantrepo.Config{
			Host:       cfg.Index.Host,
			Port:       cfg.Index.Port,
			APIKey:     cfg.Index.APIKey,
			UseTLS:     cfg.Index.UseTLS,
			Collection: cfg.Index.Collection,
		})
		if err != nil {
			logger.Fatal("Failed to connect to qdrant", zap.Error(err))
		}
		source = repo
	default:
		logger.Fatal("Unknown index driver", zap.String("driver", cfg.Index.Driver))
	}
	logger.Info("Connected to similarity index")

	// Build embedders — composition root
	textEmbedder, textChecker := buildTextEmbedder(cfg, kvStore, logger)
	imageEmbedder := jinaEmb.NewEmbedder(&jinaEmb.Config{
		APIKey:     cfg.Embedding.Image.APIKey,
		BaseURL:    cfg.Embedding.Image.BaseURL,
		Model:      cfg.Embedding.Image.Model,
		Dimensions: cfg.Index.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.Image.TimeoutSec) * time.Second,
		Provider:   providerName(cfg.Embedding.Image.Provider, "jina"),
		Logger:     logger,
	})
	logger.Info("Embedders created",
		zap.String("text_model", cfg.Embedding.Text.Model),
		zap.String("image_model", cfg.Embedding.Image.Model),
		zap.Int("dimensions", cfg.Index.Dimensions),
	)

	// Create use case services
	expander := expanduc.New(source, expanduc.Config{
		SearchMultiplier: cfg.Classify.SearchMultiplier,
		MaxFetchSize:     cfg.Classify.MaxFetchSize,
		MaxIterations:    cfg.Classify.MaxIterations,
		BatchIncrement:   cfg.Classify.BatchIncrement,
	}, logger)

	classifySvc := classifyuc.New(expander, imageEmbedder, textEmbedder, logger)
	healthSvc := healthuc.New(source, textChecker, imageEmbedder)

	// Create chi server
	validator := imaging.NewValidator(cfg.Classify.MaxImageBytes)
	server := chiTransport.NewServer(classifySvc, healthSvc, validator, chiTransport.Limits{
		DefaultTopK:   cfg.Classify.DefaultTopK,
		MaxTopK:       cfg.Classify.MaxTopK,
		MaxImageBytes: cfg.Classify.MaxImageBytes,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildTextEmbedder assembles the text embedder chain: OpenAI -> Cached.
// The cache needs a key-value store, so it is only wired on the redis driver.
// The base provider is returned separately as the health checker since the
// cache decorator has no provider check of its own.
func buildTextEmbedder(
	cfg config.Config, kvStore *dbRedis.Store, logger *zap.Logger,
) (domain.QueryEmbedder, healthuc.EmbeddingChecker) {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.Text.APIKey,
		BaseURL:    cfg.Embedding.Text.BaseURL,
		Model:      cfg.Embedding.Text.Model,
		Dimensions: cfg.Index.Dimensions,
		Provider:   providerName(cfg.Embedding.Text.Provider, "openai"),
		Logger:     logger,
	})

	if cfg.Embedding.CacheEnabled && kvStore != nil {
		return embcache.New(base, kvStore, metrics.EmbeddingCacheTotal, logger), base
	}
	return base, base
}

func providerName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
