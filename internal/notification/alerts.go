// Package notification evaluates price alert rules against the live feed
// and publishes matches to SNS.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/whytheybuy/marketdata/internal/money"
	"github.com/whytheybuy/marketdata/internal/platform/config"
	"github.com/whytheybuy/marketdata/internal/platform/observability"
	"github.com/whytheybuy/marketdata/internal/realtime"
)

// Publisher sends alert notifications. The production implementation is
// the SNS client; tests inject a fake.
type Publisher interface {
	Publish(ctx context.Context, topicARN string, message interface{}, attributes map[string]string) error
}

// NoopPublisher drops every notification. Used when alerts are disabled.
type NoopPublisher struct{}

// Publish discards the message.
func (NoopPublisher) Publish(ctx context.Context, topicARN string, message interface{}, attributes map[string]string) error {
	return nil
}

// Alert is the notification payload published when a rule fires.
type Alert struct {
	Symbol    string    `json:"symbol"`
	Direction string    `json:"direction"`
	Threshold string    `json:"threshold"` // USD, two decimals
	Price     string    `json:"price"`     // USD, two decimals
	FiredAt   time.Time `json:"fired_at"`
}

type rule struct {
	symbol    string
	direction string
	threshold money.Cents
}

func (r rule) key() string {
	return fmt.Sprintf("%s|%s|%d", r.symbol, r.direction, r.threshold)
}

// matches reports whether a price satisfies the rule. Comparison is in
// cents so float rendering noise cannot flip the outcome.
func (r rule) matches(price money.Cents) bool {
	switch r.direction {
	case "above":
		return price >= r.threshold
	case "below":
		return price <= r.threshold
	default:
		return false
	}
}

// Evaluator watches the tick stream and fires alerts when configured
// thresholds are crossed. Each rule observes a cooldown after firing so
// a price oscillating around the threshold does not spam notifications.
type Evaluator struct {
	rules     map[string][]rule
	cooldown  time.Duration
	publisher Publisher
	topicARN  string
	logger    *observability.Logger
	metrics   *observability.Metrics

	lastFired map[string]time.Time
	now       func() time.Time
}

// NewEvaluator creates an alert evaluator from configured rules
func NewEvaluator(cfg config.AlertsConfig, topicARN string, publisher Publisher, logger *observability.Logger, metrics *observability.Metrics) *Evaluator {
	rules := make(map[string][]rule)
	for _, rc := range cfg.Rules {
		symbol := realtime.Canonical(rc.Symbol)
		rules[symbol] = append(rules[symbol], rule{
			symbol:    symbol,
			direction: rc.Direction,
			threshold: money.FromFloat(rc.PriceUSD),
		})
	}

	return &Evaluator{
		rules:     rules,
		cooldown:  cfg.Cooldown,
		publisher: publisher,
		topicARN:  topicARN,
		logger:    logger,
		metrics:   metrics,
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Run consumes the feed firehose until the context is cancelled.
func (e *Evaluator) Run(ctx context.Context, service *realtime.Service) error {
	ticks, cancel := service.AllTicks()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-ticks:
			e.Evaluate(ctx, tick)
		}
	}
}

// Evaluate checks one tick against the rules for its symbol.
func (e *Evaluator) Evaluate(ctx context.Context, tick realtime.Tick) {
	rules, ok := e.rules[tick.Symbol]
	if !ok {
		return
	}

	price := money.FromFloat(tick.Price)
	now := e.now()

	for _, r := range rules {
		if !r.matches(price) {
			continue
		}
		if fired, ok := e.lastFired[r.key()]; ok && now.Sub(fired) < e.cooldown {
			continue
		}
		e.lastFired[r.key()] = now

		alert := Alert{
			Symbol:    r.symbol,
			Direction: r.direction,
			Threshold: r.threshold.String(),
			Price:     price.String(),
			FiredAt:   now,
		}

		if err := e.publisher.Publish(ctx, e.topicARN, alert, map[string]string{
			"symbol":    r.symbol,
			"direction": r.direction,
		}); err != nil {
			if e.logger != nil {
				e.logger.LogError(ctx, "alert publish failed", err, "symbol", r.symbol)
			}
			// Let the rule fire again next tick instead of waiting out
			// the cooldown on a failed publish
			delete(e.lastFired, r.key())
			continue
		}

		if e.metrics != nil {
			e.metrics.RecordAlertFired(ctx, r.symbol, r.direction)
		}
		if e.logger != nil {
			e.logger.Info("price alert fired",
				"symbol", r.symbol,
				"direction", r.direction,
				"threshold_usd", alert.Threshold,
				"price_usd", alert.Price,
			)
		}
	}
}
