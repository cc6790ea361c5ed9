package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/whytheybuy/marketdata/internal/platform/resilience"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:   srv.URL,
		AuthToken: "test-token",
		RetryConfig: resilience.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, srv
}

func TestClient_GetQuote(t *testing.T) {
	var gotPath, gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"AAPL","price":231.5,"change":1.2,"change_percent":0.52,"volume":1000}`))
	}))

	quote, err := client.GetQuote(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}

	// Request path carries the canonical upper-case symbol
	if gotPath != "/api/v1/stocks/AAPL/quote" {
		t.Errorf("Expected path /api/v1/stocks/AAPL/quote, got %s", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Expected bearer token header, got %q", gotAuth)
	}
	if quote.Symbol != "AAPL" {
		t.Errorf("Expected symbol AAPL, got %s", quote.Symbol)
	}
	if quote.Price != 231.5 {
		t.Errorf("Expected price 231.5, got %v", quote.Price)
	}
}

func TestClient_GetPriceHistory(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("range") != "1m" {
			t.Errorf("Expected range=1m, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"symbol":"MSFT","range":"1m","points":[{"close":415.2,"volume":500}]}`))
	}))

	history, err := client.GetPriceHistory(context.Background(), "MSFT", "1m")
	if err != nil {
		t.Fatalf("GetPriceHistory failed: %v", err)
	}
	if len(history.Points) != 1 || history.Points[0].Close != 415.2 {
		t.Errorf("Unexpected history: %+v", history)
	}
}

func TestClient_RetriesOnServerError(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"symbol":"AAPL","price":231.5}`))
	}))

	quote, err := client.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Expected retry to recover, got %v", err)
	}
	if quote.Price != 231.5 {
		t.Errorf("Expected price 231.5, got %v", quote.Price)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", got)
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such symbol", http.StatusNotFound)
	}))

	_, err := client.GetQuote(context.Background(), "NOPE")
	if err == nil {
		t.Fatal("Expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected status in error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected single upstream call for 404, got %d", got)
	}
}

func TestClient_CircuitOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "backend-api",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})

	client, err := NewClient(ClientConfig{
		BaseURL: srv.URL,
		RetryConfig: resilience.RetryConfig{
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
		},
		CircuitBreaker: cb,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := client.GetQuote(context.Background(), "AAPL"); err == nil {
			t.Fatal("Expected error from failing upstream")
		}
	}

	if cb.State() != resilience.StateOpen {
		t.Fatalf("Expected circuit open after failures, got %s", cb.State())
	}

	health := client.Health()
	if health.ConsecutiveFailures != 2 {
		t.Errorf("Expected 2 consecutive failures, got %d", health.ConsecutiveFailures)
	}
	if health.CircuitState != "open" {
		t.Errorf("Expected circuit state open, got %s", health.CircuitState)
	}
}

func TestClient_MalformedBody(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol": "AAPL", "price":`))
	}))

	_, err := client.GetQuote(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("Expected decode error for malformed body")
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("Expected error for missing base URL")
	}
}
