// Package api provides the HTTP client for the WhyTheyBuy backend REST API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/whytheybuy/marketdata/internal/platform/observability"
	"github.com/whytheybuy/marketdata/internal/platform/resilience"
)

// Client calls the backend REST API with rate limiting, retry, and a
// circuit breaker in front of every request.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	authToken   string
	rateLimiter *resilience.RateLimiter
	retryCfg    resilience.RetryConfig
	cb          *resilience.CircuitBreaker
	logger      *observability.Logger
	metrics     *observability.Metrics
	tracer      observability.Tracer

	healthMu sync.RWMutex
	health   Health
}

// Health describes the client's view of upstream availability.
type Health struct {
	LastSuccess         time.Time
	LastFailure         time.Time
	LastError           string
	LastDuration        time.Duration
	ConsecutiveFailures int
	CircuitState        string
}

// ClientConfig holds API client configuration
type ClientConfig struct {
	BaseURL        string
	AuthToken      string
	Timeout        time.Duration
	RateLimitRPM   int
	RateLimitBurst int
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	Tracer         observability.Tracer
	RetryConfig    resilience.RetryConfig
	CircuitBreaker *resilience.CircuitBreaker
}

// NewClient creates a backend API client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = 300
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewTracer("backend-api")
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Jitter:      0.2,
		}
	}

	cb := cfg.CircuitBreaker
	if cb == nil {
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "backend-api",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				if cfg.Metrics != nil {
					cfg.Metrics.SetCircuitBreakerState(context.Background(), "backend-api", int64(to))
				}
			},
		})
	}
	if cfg.Metrics != nil {
		cfg.Metrics.SetCircuitBreakerState(context.Background(), "backend-api", cb.StateInt())
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		authToken:   cfg.AuthToken,
		rateLimiter: resilience.NewRateLimiterFromRPM(cfg.RateLimitRPM, cfg.RateLimitBurst),
		retryCfg:    cfg.RetryConfig,
		cb:          cb,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
	}, nil
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health returns the client's upstream health snapshot.
func (c *Client) Health() Health {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	h := c.health
	if c.cb != nil {
		h.CircuitState = c.cb.State().String()
	}
	return h
}

// GetQuote fetches the current quote for a symbol
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	path := "/api/v1/stocks/" + url.PathEscape(strings.ToUpper(symbol)) + "/quote"
	return get[Quote](c, ctx, "quote", path)
}

// GetPriceHistory fetches a historical price series for a symbol and range
// like "1d", "1m", or "1y"
func (c *Client) GetPriceHistory(ctx context.Context, symbol, rng string) (*PriceHistory, error) {
	path := fmt.Sprintf("/api/v1/stocks/%s/history?range=%s",
		url.PathEscape(strings.ToUpper(symbol)), url.QueryEscape(rng))
	return get[PriceHistory](c, ctx, "price_history", path)
}

// GetInvestor fetches an investor profile
func (c *Client) GetInvestor(ctx context.Context, investorID string) (*Investor, error) {
	path := "/api/v1/investors/" + url.PathEscape(investorID)
	return get[Investor](c, ctx, "investor_profile", path)
}

// GetHoldings fetches an investor's latest disclosed portfolio
func (c *Client) GetHoldings(ctx context.Context, investorID string) (*Holdings, error) {
	path := "/api/v1/investors/" + url.PathEscape(investorID) + "/holdings"
	return get[Holdings](c, ctx, "holdings", path)
}

// GetInvestorChanges fetches position changes from an investor's latest filing
func (c *Client) GetInvestorChanges(ctx context.Context, investorID string) (*InvestorChanges, error) {
	path := "/api/v1/investors/" + url.PathEscape(investorID) + "/changes"
	return get[InvestorChanges](c, ctx, "investor_changes", path)
}

// GetThesis fetches generated analysis for an investor's position
func (c *Client) GetThesis(ctx context.Context, investorID, symbol string) (*Thesis, error) {
	path := fmt.Sprintf("/api/v1/investors/%s/thesis/%s",
		url.PathEscape(investorID), url.PathEscape(strings.ToUpper(symbol)))
	return get[Thesis](c, ctx, "ai_content", path)
}

// GetSubscriptionStatus fetches the caller's subscription entitlements
func (c *Client) GetSubscriptionStatus(ctx context.Context) (*SubscriptionStatus, error) {
	return get[SubscriptionStatus](c, ctx, "subscription_status", "/api/v1/subscription")
}

// GetWatchlist fetches the user's watchlist
func (c *Client) GetWatchlist(ctx context.Context) (*Watchlist, error) {
	return get[Watchlist](c, ctx, "watchlist", "/api/v1/watchlist")
}

// SearchStocks searches symbols and company names
func (c *Client) SearchStocks(ctx context.Context, query string) (*SearchResults, error) {
	path := "/api/v1/stocks/search?q=" + url.QueryEscape(query)
	return get[SearchResults](c, ctx, "search_results", path)
}

// get runs a GET request through the circuit breaker, retry, and rate
// limiter, decoding the JSON body into T. Standalone function because Go
// has no generic methods.
func get[T any](c *Client, ctx context.Context, endpoint, path string) (*T, error) {
	ctx, span := c.tracer.StartSpan(
		ctx,
		"Client.get",
		observability.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("path", path),
		),
	)
	defer span.End()

	out, err := resilience.ExecuteWithResult(c.cb, ctx, func(ctx context.Context) (*T, error) {
		return resilience.RetryIfWithResult(ctx, c.retryCfg, resilience.IsRetryable, func(ctx context.Context) (*T, error) {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter error: %w", err)
			}

			start := time.Now()
			out, err := fetchJSON[T](c, ctx, path)
			duration := time.Since(start)

			c.recordHealth(err, duration)

			if c.metrics != nil {
				status := "success"
				if err != nil {
					status = "error"
				}
				c.metrics.RecordAPICall(ctx, endpoint, status, duration)
			}

			if err != nil && c.logger != nil {
				c.logger.LogError(ctx, "backend API request failed", err,
					"endpoint", endpoint,
					"duration_ms", duration.Milliseconds(),
				)
			}

			return out, err
		})
	})
	if err != nil {
		span.NoticeError(err)
	}
	return out, err
}

func fetchJSON[T any](c *Client, ctx context.Context, path string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) recordHealth(err error, duration time.Duration) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	c.health.LastDuration = duration
	if err == nil {
		c.health.LastSuccess = time.Now()
		c.health.LastError = ""
		c.health.ConsecutiveFailures = 0
		return
	}

	c.health.LastFailure = time.Now()
	c.health.LastError = err.Error()
	c.health.ConsecutiveFailures++
}
