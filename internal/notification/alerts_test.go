package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/whytheybuy/marketdata/internal/platform/config"
	"github.com/whytheybuy/marketdata/internal/realtime"
)

type fakePublisher struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, topicARN string, message interface{}, attributes map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.alerts = append(f.alerts, message.(Alert))
	return nil
}

func (f *fakePublisher) fired() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Alert(nil), f.alerts...)
}

func newEvaluator(pub Publisher, rules ...config.AlertRule) *Evaluator {
	return NewEvaluator(config.AlertsConfig{
		Enabled:  true,
		Cooldown: 15 * time.Minute,
		Rules:    rules,
	}, "arn:aws:sns:us-east-1:123:alerts", pub, nil, nil)
}

func tick(symbol string, price float64) realtime.Tick {
	return realtime.Tick{Symbol: symbol, Price: price, Timestamp: time.Now()}
}

func TestEvaluator_FiresAboveThreshold(t *testing.T) {
	pub := &fakePublisher{}
	e := newEvaluator(pub, config.AlertRule{Symbol: "aapl", Direction: "above", PriceUSD: 230})

	e.Evaluate(context.Background(), tick("AAPL", 229.99))
	if len(pub.fired()) != 0 {
		t.Fatal("Alert fired below threshold")
	}

	e.Evaluate(context.Background(), tick("AAPL", 230.00))
	alerts := pub.fired()
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Symbol != "AAPL" || alerts[0].Direction != "above" {
		t.Errorf("Unexpected alert: %+v", alerts[0])
	}
	if alerts[0].Price != "230.00" || alerts[0].Threshold != "230.00" {
		t.Errorf("Expected two-decimal USD strings, got %+v", alerts[0])
	}
}

func TestEvaluator_FiresBelowThreshold(t *testing.T) {
	pub := &fakePublisher{}
	e := newEvaluator(pub, config.AlertRule{Symbol: "MSFT", Direction: "below", PriceUSD: 400})

	e.Evaluate(context.Background(), tick("MSFT", 400.01))
	e.Evaluate(context.Background(), tick("MSFT", 399.99))

	if got := len(pub.fired()); got != 1 {
		t.Fatalf("Expected 1 alert, got %d", got)
	}
}

func TestEvaluator_CentsComparison(t *testing.T) {
	pub := &fakePublisher{}
	e := newEvaluator(pub, config.AlertRule{Symbol: "AAPL", Direction: "above", PriceUSD: 231.50})

	// Renders identically to 231.50, so it must fire despite float noise
	e.Evaluate(context.Background(), tick("AAPL", 231.49999999999997))

	if got := len(pub.fired()); got != 1 {
		t.Fatalf("Expected cents comparison to fire, got %d alerts", got)
	}
}

func TestEvaluator_Cooldown(t *testing.T) {
	pub := &fakePublisher{}
	e := newEvaluator(pub, config.AlertRule{Symbol: "AAPL", Direction: "above", PriceUSD: 230})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	e.now = func() time.Time { return current }

	e.Evaluate(context.Background(), tick("AAPL", 231))
	e.Evaluate(context.Background(), tick("AAPL", 232))
	if got := len(pub.fired()); got != 1 {
		t.Fatalf("Expected cooldown to suppress repeat, got %d alerts", got)
	}

	// After the cooldown the rule may fire again
	current = base.Add(16 * time.Minute)
	e.Evaluate(context.Background(), tick("AAPL", 233))
	if got := len(pub.fired()); got != 2 {
		t.Fatalf("Expected refire after cooldown, got %d alerts", got)
	}
}

func TestEvaluator_FailedPublishRetriesNextTick(t *testing.T) {
	pub := &fakePublisher{err: errors.New("sns down")}
	e := newEvaluator(pub, config.AlertRule{Symbol: "AAPL", Direction: "above", PriceUSD: 230})

	e.Evaluate(context.Background(), tick("AAPL", 231))
	if len(pub.fired()) != 0 {
		t.Fatal("Publish should have failed")
	}

	// Publish failure must not consume the cooldown
	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()

	e.Evaluate(context.Background(), tick("AAPL", 231))
	if got := len(pub.fired()); got != 1 {
		t.Fatalf("Expected alert after publisher recovered, got %d", got)
	}
}

func TestEvaluator_IgnoresOtherSymbols(t *testing.T) {
	pub := &fakePublisher{}
	e := newEvaluator(pub, config.AlertRule{Symbol: "AAPL", Direction: "above", PriceUSD: 230})

	e.Evaluate(context.Background(), tick("MSFT", 500))
	if len(pub.fired()) != 0 {
		t.Error("Alert fired for unrelated symbol")
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.Publish(context.Background(), "arn", Alert{}, nil); err != nil {
		t.Errorf("NoopPublisher returned error: %v", err)
	}
}
