package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/whytheybuy/marketdata/internal/api"
	"github.com/whytheybuy/marketdata/internal/platform/config"
	"github.com/whytheybuy/marketdata/internal/platform/observability"
	"github.com/whytheybuy/marketdata/internal/platform/worker"
)

// Providers bundles the cached accessors for every backend resource.
// Each field is an independent cache with its own validity window.
type Providers struct {
	Quotes             *Cached[*api.Quote]
	History            *Cached[*api.PriceHistory]
	Investors          *Cached[*api.Investor]
	Holdings           *Cached[*api.Holdings]
	InvestorChanges    *Cached[*api.InvestorChanges]
	Theses             *Cached[*api.Thesis]
	SubscriptionStatus *Cached[*api.SubscriptionStatus]
	Watchlist          *Cached[*api.Watchlist]
	Search             *Cached[*api.SearchResults]

	client *api.Client
	logger *observability.Logger
}

// New wires cached providers over the backend client using the configured
// per-resource TTLs
func New(client *api.Client, ttl config.TTLConfig, logger *observability.Logger, metrics *observability.Metrics) *Providers {
	return &Providers{
		Quotes: NewCached("live_quote", ttl.LiveQuote, func(ctx context.Context, symbol string) (*api.Quote, error) {
			return client.GetQuote(ctx, symbol)
		}, logger, metrics),

		History: NewCached("price_history", ttl.PriceHistory, func(ctx context.Context, key string) (*api.PriceHistory, error) {
			symbol, rng, err := splitKey(key)
			if err != nil {
				return nil, err
			}
			return client.GetPriceHistory(ctx, symbol, rng)
		}, logger, metrics),

		Investors: NewCached("investor_profile", ttl.InvestorProfile, func(ctx context.Context, id string) (*api.Investor, error) {
			return client.GetInvestor(ctx, id)
		}, logger, metrics),

		Holdings: NewCached("holdings", ttl.Holdings, func(ctx context.Context, id string) (*api.Holdings, error) {
			return client.GetHoldings(ctx, id)
		}, logger, metrics),

		InvestorChanges: NewCached("investor_changes", ttl.InvestorChanges, func(ctx context.Context, id string) (*api.InvestorChanges, error) {
			return client.GetInvestorChanges(ctx, id)
		}, logger, metrics),

		Theses: NewCached("ai_content", ttl.AIContent, func(ctx context.Context, key string) (*api.Thesis, error) {
			investorID, symbol, err := splitKey(key)
			if err != nil {
				return nil, err
			}
			return client.GetThesis(ctx, investorID, symbol)
		}, logger, metrics),

		SubscriptionStatus: NewCached("subscription_status", ttl.SubscriptionStatus, func(ctx context.Context, _ string) (*api.SubscriptionStatus, error) {
			return client.GetSubscriptionStatus(ctx)
		}, logger, metrics),

		Watchlist: NewCached("watchlist", ttl.Watchlist, func(ctx context.Context, _ string) (*api.Watchlist, error) {
			return client.GetWatchlist(ctx)
		}, logger, metrics),

		Search: NewCached("search_results", ttl.SearchResults, func(ctx context.Context, query string) (*api.SearchResults, error) {
			return client.SearchStocks(ctx, query)
		}, logger, metrics),

		client: client,
		logger: logger,
	}
}

// HistoryKey builds the composite cache key for a price history lookup.
func HistoryKey(symbol, rng string) string {
	return strings.ToUpper(symbol) + "|" + rng
}

// ThesisKey builds the composite cache key for a thesis lookup.
func ThesisKey(investorID, symbol string) string {
	return investorID + "|" + strings.ToUpper(symbol)
}

// SelfKey is the key for single-instance resources like the watchlist.
const SelfKey = "self"

func splitKey(key string) (string, string, error) {
	a, b, ok := strings.Cut(key, "|")
	if !ok || a == "" || b == "" {
		return "", "", fmt.Errorf("malformed composite key %q", key)
	}
	return a, b, nil
}

// PurgeExpired sweeps every resource cache and returns the total number
// of entries removed.
func (p *Providers) PurgeExpired() int {
	total := p.Quotes.PurgeExpired() +
		p.History.PurgeExpired() +
		p.Investors.PurgeExpired() +
		p.Holdings.PurgeExpired() +
		p.InvestorChanges.PurgeExpired() +
		p.Theses.PurgeExpired() +
		p.SubscriptionStatus.PurgeExpired() +
		p.Watchlist.PurgeExpired() +
		p.Search.PurgeExpired()
	return total
}

// ClearAll drops every cached entry, for example on logout.
func (p *Providers) ClearAll() {
	p.Quotes.Clear()
	p.History.Clear()
	p.Investors.Clear()
	p.Holdings.Clear()
	p.InvestorChanges.Clear()
	p.Theses.Clear()
	p.SubscriptionStatus.Clear()
	p.Watchlist.Clear()
	p.Search.Clear()
}

// WarmWatchlist pre-fetches quotes and daily history for the given symbols
// on the worker pool, so first paint after startup is served from cache.
func (p *Providers) WarmWatchlist(ctx context.Context, pool *worker.Pool, symbols []string) error {
	jobs := make([]worker.Job, 0, len(symbols)*2)
	for _, symbol := range symbols {
		symbol := strings.ToUpper(symbol)

		jobs = append(jobs, worker.Job{
			ID: "warm-quote-" + symbol,
			Execute: func(ctx context.Context) (interface{}, error) {
				return p.Quotes.Get(ctx, symbol)
			},
		})
		jobs = append(jobs, worker.Job{
			ID: "warm-history-" + symbol,
			Execute: func(ctx context.Context) (interface{}, error) {
				return p.History.Get(ctx, HistoryKey(symbol, "1d"))
			},
		})
	}

	results := pool.SubmitAndWait(jobs)
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			if p.logger != nil {
				p.logger.Warn("watchlist warmup fetch failed", "job", res.JobID, "error", res.Err)
			}
		}
	}

	if p.logger != nil {
		p.logger.Info("watchlist warmup complete", "symbols", len(symbols), "jobs", len(results))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d warmup fetches failed", failed, len(results))
	}
	return nil
}

// WatchlistWarmup adapts watchlist pre-fetching to the cache warmer so it
// runs alongside other warmup providers at startup.
type WatchlistWarmup struct {
	providers *Providers
	pool      *worker.Pool
	symbols   []string
}

// NewWatchlistWarmup creates a warmup provider for the given symbols.
func NewWatchlistWarmup(p *Providers, pool *worker.Pool, symbols []string) *WatchlistWarmup {
	return &WatchlistWarmup{providers: p, pool: pool, symbols: symbols}
}

// Name identifies this provider in warmup logs.
func (w *WatchlistWarmup) Name() string {
	return "watchlist"
}

// Warmup pre-fetches quotes and history for the watchlist symbols.
func (w *WatchlistWarmup) Warmup(ctx context.Context) error {
	return w.providers.WarmWatchlist(ctx, w.pool, w.symbols)
}
