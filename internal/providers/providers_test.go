package providers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCached_HitSkipsFetch(t *testing.T) {
	var calls int32
	c := NewCached("quote", time.Minute, func(ctx context.Context, key string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "231.50", nil
	}, nil, nil)

	for i := 0; i < 3; i++ {
		val, err := c.Get(context.Background(), "AAPL")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != "231.50" {
			t.Errorf("Expected 231.50, got %q", val)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected 1 upstream fetch, got %d", got)
	}
}

func TestCached_FailedFetchNotCached(t *testing.T) {
	var calls int32
	fail := true
	var mu sync.Mutex

	c := NewCached("quote", time.Minute, func(ctx context.Context, key string) (string, error) {
		atomic.AddInt32(&calls, 1)
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return "", errors.New("upstream down")
		}
		return "231.50", nil
	}, nil, nil)

	if _, err := c.Get(context.Background(), "AAPL"); err == nil {
		t.Fatal("Expected fetch error")
	}

	// The failure must not occupy the cache slot
	if _, ok := c.Peek("AAPL"); ok {
		t.Error("Failed fetch should not be cached")
	}

	mu.Lock()
	fail = false
	mu.Unlock()

	val, err := c.Get(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Expected recovery after upstream healed, got %v", err)
	}
	if val != "231.50" {
		t.Errorf("Expected 231.50, got %q", val)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 upstream fetches, got %d", got)
	}
}

func TestCached_ConcurrentMissesCoalesce(t *testing.T) {
	var calls int32
	release := make(chan struct{})

	c := NewCached("quote", time.Minute, func(ctx context.Context, key string) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "231.50", nil
	}, nil, nil)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := c.Get(context.Background(), "AAPL")
			if err != nil {
				errs <- err
				return
			}
			if val != "231.50" {
				errs <- errors.New("wrong value " + val)
			}
		}()
	}

	// Give the goroutines time to pile up on the same key, then release
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent get failed: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected concurrent misses to share 1 upstream fetch, got %d", got)
	}
}

func TestCached_DistinctKeysFetchIndependently(t *testing.T) {
	var calls int32
	c := NewCached("quote", time.Minute, func(ctx context.Context, key string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return key + "-price", nil
	}, nil, nil)

	for _, symbol := range []string{"AAPL", "MSFT", "NVDA"} {
		val, err := c.Get(context.Background(), symbol)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", symbol, err)
		}
		if val != symbol+"-price" {
			t.Errorf("Expected %s-price, got %q", symbol, val)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 upstream fetches, got %d", got)
	}
}

func TestCached_InvalidateForcesRefetch(t *testing.T) {
	var calls int32
	c := NewCached("quote", time.Minute, func(ctx context.Context, key string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}, nil, nil)

	_, _ = c.Get(context.Background(), "AAPL")
	c.Invalidate("AAPL")
	_, _ = c.Get(context.Background(), "AAPL")

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected refetch after invalidate, got %d fetches", got)
	}
}

func TestCompositeKeys(t *testing.T) {
	if got := HistoryKey("aapl", "1m"); got != "AAPL|1m" {
		t.Errorf("HistoryKey = %q", got)
	}
	if got := ThesisKey("inv-1", "msft"); got != "inv-1|MSFT" {
		t.Errorf("ThesisKey = %q", got)
	}

	a, b, err := splitKey("AAPL|1m")
	if err != nil || a != "AAPL" || b != "1m" {
		t.Errorf("splitKey = %q, %q, %v", a, b, err)
	}

	if _, _, err := splitKey("no-separator"); err == nil {
		t.Error("Expected error for malformed key")
	}
}
