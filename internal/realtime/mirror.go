package realtime

import (
	"context"
	"time"

	"github.com/whytheybuy/marketdata/internal/platform/cache"
	"github.com/whytheybuy/marketdata/internal/platform/observability"
)

// MirroredQuote is the value stored for each mirrored symbol.
type MirroredQuote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// QuoteMirror copies live ticks into a cache under "quote:<SYMBOL>" keys,
// so HTTP reads and alert evaluation see the most recent feed price
// without their own subscriptions.
type QuoteMirror struct {
	service *Service
	cache   cache.Cache
	ttl     time.Duration
	logger  *observability.Logger
}

// NewQuoteMirror creates a mirror writing ticks into the given cache with
// the given TTL per entry.
func NewQuoteMirror(service *Service, c cache.Cache, ttl time.Duration, logger *observability.Logger) *QuoteMirror {
	return &QuoteMirror{
		service: service,
		cache:   c,
		ttl:     ttl,
		logger:  logger,
	}
}

// QuoteKey returns the cache key for a symbol's mirrored quote.
func QuoteKey(symbol string) string {
	return "quote:" + Canonical(symbol)
}

// Run consumes the feed firehose until the context is cancelled.
func (m *QuoteMirror) Run(ctx context.Context) error {
	ticks, cancel := m.service.AllTicks()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-ticks:
			quote := MirroredQuote{
				Symbol:    tick.Symbol,
				Price:     tick.Price,
				Volume:    tick.Volume,
				Timestamp: tick.Timestamp,
			}
			if err := m.cache.Set(ctx, QuoteKey(tick.Symbol), quote, m.ttl); err != nil {
				if m.logger != nil {
					m.logger.Warn("quote mirror write failed", "symbol", tick.Symbol, "error", err)
				}
			}
		}
	}
}
