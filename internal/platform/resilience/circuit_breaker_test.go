package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "quotes-api",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Second,
	})

	if cb.State() != StateClosed {
		t.Fatalf("Expected initial state Closed, got %s", cb.State())
	}

	failErr := errors.New("upstream unavailable")
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return failErr
		})
		if cb.State() != StateClosed {
			t.Errorf("Expected Closed after %d failures, got %s", i+1, cb.State())
		}
	}

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return failErr
	})
	if cb.State() != StateOpen {
		t.Errorf("Expected Open after 3 failures, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen while open, got %v", err)
	}
}

func TestCircuitBreaker_OpenToHalfOpenToClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "quotes-api",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          100 * time.Millisecond,
	})

	cb.ForceOpen()

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen before timeout, got %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	executed := false
	err = cb.Execute(context.Background(), func(ctx context.Context) error {
		executed = true
		return nil
	})
	if err != nil {
		t.Errorf("Expected probe to succeed after timeout, got %v", err)
	}
	if !executed {
		t.Error("Expected function to be executed in half-open")
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected Closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRequiresSuccessThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "quotes-api",
		FailureThreshold: 1,
		SuccessThreshold: 3,
		Timeout:          100 * time.Millisecond,
	})

	cb.ForceOpen()
	time.Sleep(150 * time.Millisecond)

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return nil
		})
		if err != nil {
			t.Errorf("Probe %d failed unexpectedly: %v", i+1, err)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected Closed after 3 successes in half-open, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenToOpenOnFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "quotes-api",
		FailureThreshold: 1,
		SuccessThreshold: 3,
		Timeout:          100 * time.Millisecond,
	})

	cb.ForceOpen()
	time.Sleep(150 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("still failing")
	})

	if cb.State() != StateOpen {
		t.Errorf("Expected Open after failed probe, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen after failed probe, got %v", err)
	}
}

func TestCircuitBreaker_IgnoresContextErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "quotes-api",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Second,
	})

	for _, ctxErr := range []error{context.Canceled, context.DeadlineExceeded} {
		for i := 0; i < 5; i++ {
			_ = cb.Execute(context.Background(), func(ctx context.Context) error {
				return ctxErr
			})
		}
		if cb.State() != StateClosed {
			t.Errorf("Expected Closed after %v errors, got %s", ctxErr, cb.State())
		}
	}
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions []struct{ from, to State }

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "quotes-api",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          100 * time.Millisecond,
		OnStateChange: func(from, to State) {
			mu.Lock()
			transitions = append(transitions, struct{ from, to State }{from, to})
			mu.Unlock()
		},
	})

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("failure")
		})
	}

	time.Sleep(150 * time.Millisecond)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})

	mu.Lock()
	defer mu.Unlock()

	want := []struct{ from, to State }{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}

	if len(transitions) != len(want) {
		t.Fatalf("Expected %d transitions, got %d: %v", len(want), len(transitions), transitions)
	}
	for i, w := range want {
		if transitions[i] != w {
			t.Errorf("Transition %d: expected %s to %s, got %s to %s",
				i, w.from, w.to, transitions[i].from, transitions[i].to)
		}
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "quotes-api",
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Second,
	})

	fail := func(ctx context.Context) error { return errors.New("failure") }
	ok := func(ctx context.Context) error { return nil }

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), ok)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)

	if cb.State() != StateClosed {
		t.Errorf("Expected Closed (counter reset by success), got %s", cb.State())
	}

	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateOpen {
		t.Errorf("Expected Open after 3 consecutive failures, got %s", cb.State())
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "defaults"})

	if cb.failureThreshold != 5 {
		t.Errorf("Expected default failureThreshold 5, got %d", cb.failureThreshold)
	}
	if cb.successThreshold != 2 {
		t.Errorf("Expected default successThreshold 2, got %d", cb.successThreshold)
	}
	if cb.timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", cb.timeout)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected initial state Closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "quotes-api",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("failure")
	})
	if cb.State() != StateOpen {
		t.Fatalf("Expected Open, got %s", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("Expected Closed after reset, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("Expected request to succeed after reset, got %v", err)
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "quotes-api",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Second,
	})

	state, failures, successes := cb.Stats()
	if state != StateClosed || failures != 0 || successes != 0 {
		t.Errorf("Initial stats wrong: state=%s failures=%d successes=%d", state, failures, successes)
	}

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("failure")
		})
	}
	if _, failures, _ := cb.Stats(); failures != 2 {
		t.Errorf("Expected 2 failures, got %d", failures)
	}

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	_, failures, successes = cb.Stats()
	if failures != 0 {
		t.Errorf("Expected 0 failures after success, got %d", failures)
	}
	if successes != 1 {
		t.Errorf("Expected 1 success, got %d", successes)
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "quotes-api",
		FailureThreshold: 100,
		SuccessThreshold: 10,
		Timeout:          time.Second,
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = cb.Execute(context.Background(), func(ctx context.Context) error {
					if id%3 == 0 {
						return errors.New("failure")
					}
					return nil
				})
				_ = cb.State()
				_, _, _ = cb.Stats()
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("Concurrent access timed out - possible deadlock")
	}
}

func TestExecuteWithResult(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "quotes-api",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Second,
	})

	result, err := ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (string, error) {
		return "231.50", nil
	})
	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if result != "231.50" {
		t.Errorf("Expected %q, got %q", "231.50", result)
	}

	result, err = ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (string, error) {
		return "", errors.New("failure")
	})
	if err == nil {
		t.Error("Expected error")
	}
	if result != "" {
		t.Errorf("Expected zero result on error, got %q", result)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State %d: expected %q, got %q", tt.state, tt.expected, got)
		}
	}
}
