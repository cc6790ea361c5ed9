package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/whytheybuy/marketdata/internal/api"
	"github.com/whytheybuy/marketdata/internal/notification"
	"github.com/whytheybuy/marketdata/internal/platform/aws"
	"github.com/whytheybuy/marketdata/internal/platform/cache"
	"github.com/whytheybuy/marketdata/internal/platform/config"
	"github.com/whytheybuy/marketdata/internal/platform/observability"
	"github.com/whytheybuy/marketdata/internal/platform/worker"
	"github.com/whytheybuy/marketdata/internal/providers"
	"github.com/whytheybuy/marketdata/internal/realtime"
)

func main() {
	// Create root context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration (WTB_CONFIG overrides the default search path)
	log.Println("Loading configuration...")
	cfg := config.MustLoad(os.Getenv("WTB_CONFIG"))

	// Setup observability (foundational - must be first)
	log.Println("Setting up observability...")
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics("whytheybuyd", cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracer, err := observability.NewTracerProvider(ctx, "whytheybuyd", cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracer.Shutdown(ctx)

	logger.Info("observability setup complete")

	// Setup infrastructure
	logger.Info("setting up infrastructure...")

	// Quote mirror cache: in-memory always, layered over Redis when configured
	memCache := cache.NewMemoryCache()
	defer memCache.Close()

	var quoteCache cache.Cache = memCache
	if cfg.Redis.Address != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.LogError(ctx, "failed to create Redis cache", err)
			log.Fatalf("Failed to create Redis cache: %v", err)
		}
		defer redisCache.Close()

		quoteCache = cache.NewLayeredCacheWithLogger(memCache, redisCache, logger.Logger)
		logger.Info("quote mirror using layered memory+Redis cache", "address", cfg.Redis.Address)
	} else {
		logger.Info("quote mirror using in-memory cache only")
	}

	// Backend API client
	logger.Info("creating backend API client...")
	client, err := api.NewClient(api.ClientConfig{
		BaseURL:        cfg.API.BaseURL,
		AuthToken:      cfg.API.AuthToken,
		Timeout:        cfg.API.Timeout,
		RateLimitRPM:   cfg.API.RateLimit.RequestsPerMinute,
		RateLimitBurst: cfg.API.RateLimit.Burst,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create API client", err)
		log.Fatalf("Failed to create API client: %v", err)
	}

	// Cached data providers
	provs := providers.New(client, cfg.TTL, logger, metrics)

	// Worker pool for cache warming
	pool := worker.NewPool(ctx, 4, 32)
	defer pool.Close()

	// Realtime price feed
	logger.Info("creating realtime price feed...")
	endpoint, err := realtime.DeriveEndpoint(cfg.API.BaseURL, cfg.Realtime.Path)
	if err != nil {
		logger.LogError(ctx, "failed to derive feed endpoint", err)
		log.Fatalf("Failed to derive feed endpoint: %v", err)
	}

	feed := realtime.NewService(realtime.ServiceConfig{
		Endpoint:   endpoint,
		RetryDelay: cfg.Realtime.RetryDelay,
		BufferSize: cfg.Realtime.BufferSize,
		Logger:     logger,
		Metrics:    metrics,
	})
	defer feed.Disconnect()

	// Register watchlist subscriptions before connecting so the initial
	// connection subscribes to all of them at once.
	subCancels := make([]func(), 0, len(cfg.Watchlist.Symbols))
	for _, symbol := range cfg.Watchlist.Symbols {
		_, cancelSub := feed.Ticks(symbol)
		subCancels = append(subCancels, cancelSub)
	}
	defer func() {
		for _, cancelSub := range subCancels {
			cancelSub()
		}
	}()

	// A failed initial dial is not fatal, the feed retries on its own
	feed.Connect(ctx)

	// Alert publisher: SNS when alerts are enabled, otherwise a no-op
	var publisher notification.Publisher = notification.NoopPublisher{}
	if cfg.Alerts.Enabled {
		logger.Info("creating SNS alert publisher...", "topic", cfg.AWS.SNSTopicARN)
		awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{Region: cfg.AWS.Region})
		if err != nil {
			logger.LogError(ctx, "failed to load AWS config", err)
			log.Fatalf("Failed to load AWS config: %v", err)
		}
		publisher = aws.NewSNSClient(aws.SNSClientConfig{
			AWSConfig: awsCfg,
			Logger:    logger,
			Metrics:   metrics,
		})
	}
	evaluator := notification.NewEvaluator(cfg.Alerts, cfg.AWS.SNSTopicARN, publisher, logger, metrics)

	// Quote mirror keeps the latest tick per symbol queryable over HTTP
	mirror := realtime.NewQuoteMirror(feed, quoteCache, cfg.TTL.LiveQuote, logger)

	// Start HTTP server for health checks, metrics and cached quotes
	logger.Info("starting HTTP server...")
	go startHTTPServer(cfg.HTTP.Port, provs, feed, metrics, logger)

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Run background loops
	logger.Info("starting market-data daemon...")
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mirror.Run(gctx)
	})

	g.Go(func() error {
		return evaluator.Run(gctx, feed)
	})

	g.Go(func() error {
		return runPurgeLoop(gctx, provs, logger)
	})

	g.Go(func() error {
		warmer := cache.NewWarmer(logger, cache.DefaultWarmupConfig())
		warmer.RegisterProvider(providers.NewWatchlistWarmup(provs, pool, cfg.Watchlist.Symbols))
		// Warmup failures leave the caches cold for those resources but
		// never block startup.
		warmer.Warmup(gctx)
		return nil
	})

	// Wait for shutdown signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully stopping...")

	// Graceful shutdown
	feed.Disconnect()
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.LogError(context.Background(), "background loop error", err)
	}
	logger.Info("daemon stopped")
}

// runPurgeLoop evicts expired cache entries on a fixed interval.
func runPurgeLoop(ctx context.Context, provs *providers.Providers, logger *observability.Logger) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if purged := provs.PurgeExpired(); purged > 0 {
				logger.Debug("purged expired cache entries", "count", purged)
			}
		}
	}
}

// startHTTPServer starts the HTTP server for health checks, metrics and
// read-only access to cached quotes and feed status.
func startHTTPServer(port int, provs *providers.Providers, feed *realtime.Service, metrics *observability.Metrics, logger *observability.Logger) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Readiness check
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// Metrics endpoint
	mux.Handle("/metrics", metrics.Handler())

	// Cached quote lookup (fetches from the backend on a cache miss)
	mux.HandleFunc("GET /api/v1/quotes/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
		if symbol == "" {
			http.Error(w, `{"error":"symbol is required"}`, http.StatusBadRequest)
			return
		}

		quote, err := provs.Quotes.Get(r.Context(), symbol)
		if err != nil {
			logger.Warn("quote lookup failed", "symbol", symbol, "error", err)
			http.Error(w, `{"error":"quote unavailable"}`, http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(quote)
	})

	// Feed connection state and active subscriptions
	mux.HandleFunc("GET /api/v1/realtime/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"state":         feed.State().String(),
			"subscriptions": feed.Subscriptions(),
		})
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Info("HTTP server listening", "address", addr)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.LogError(context.Background(), "HTTP server error", err)
	}
}
