package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aicostmanager/aicostmanager-go/internal/sdkerrors"
)

// Full integration tests for resilience wrapper.

func TestResilienceWrapper_CircuitBreakerRejectsWhenOpen(t *testing.T) {
	t.Parallel()

	cb := &mockCircuitBreaker{
		name:  "test-cb",
		state: StateOpen,
		executeFn: func(ctx context.Context, fn func() (any, error)) (any, error) {
			return nil, NewCircuitOpenError(nil)
		},
	}

	wrapper := NewResilienceWrapper(
		WithCircuitBreakerFactory(func(name string) CircuitBreaker { return cb }),
	)

	err := wrapper.Execute(context.Background(), "test-op", func(ctx context.Context) error {
		t.Error("Operation should not have been called when circuit is open")
		return nil
	})

	if err == nil {
		t.Error("Expected error when circuit is open")
	}

	if !IsCircuitOpen(err) {
		t.Errorf("Expected circuit open error, got: %v", err)
	}
}

func TestResilienceWrapper_CircuitBreakerIgnoresAPIRejection(t *testing.T) {
	t.Parallel()

	// A 4xx APIRequestError is an application-level rejection, not an
	// infrastructure failure, and must not trip the breaker.
	cbCfg := DefaultCircuitBreakerConfig()
	cbCfg.FailureThreshold = 1
	cb := NewCircuitBreaker("test-cb-rejection", cbCfg)

	wrapper := NewResilienceWrapper(
		WithCircuitBreakerFactory(func(name string) CircuitBreaker { return cb }),
	)

	rejection := sdkerrors.NewAPIRequestError(422, map[string]any{"error": "invalid request"}, nil)

	for i := 0; i < 5; i++ {
		err := wrapper.Execute(context.Background(), "test-op", func(ctx context.Context) error {
			return rejection
		})
		if err == nil {
			t.Fatal("Expected the rejection error to propagate")
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected breaker to stay closed on repeated 4xx rejections, got %s", cb.State())
	}
}

func TestResilienceWrapper_ConcurrentExecution(t *testing.T) {
	t.Parallel()

	wrapper := NewResilienceWrapper()

	var count atomic.Int32
	var wg sync.WaitGroup

	numGoroutines := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := wrapper.Execute(context.Background(), "concurrent-test", func(ctx context.Context) error {
				count.Add(1)
				return nil
			})
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if count.Load() != int32(numGoroutines) {
		t.Errorf("Expected %d operations, got %d", numGoroutines, count.Load())
	}
}
