package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aicostmanager/aicostmanager-go/internal/sdkerrors"
)

// State represents the circuit breaker state.
type State string

const (
	// StateClosed indicates the circuit breaker is closed and requests are allowed.
	StateClosed State = "closed"
	// StateOpen indicates the circuit breaker is open and requests are rejected.
	StateOpen State = "open"
	// StateHalfOpen indicates the circuit breaker is half-open and limited requests are allowed.
	StateHalfOpen State = "half-open"
)

// stateToInt converts State to an integer for metrics.
func stateToInt(s State) int {
	switch s {
	case StateClosed:
		return 0
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// goStateToState converts gobreaker.State to our State type.
func goStateToState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// CircuitBreaker provides circuit breaker pattern functionality.
// It protects against cascading failures by temporarily blocking
// requests to failing services.
type CircuitBreaker interface {
	// Execute runs the given function with circuit breaker protection.
	// It returns ErrCircuitOpen (RES-001) if the circuit is open.
	Execute(ctx context.Context, fn func() (any, error)) (any, error)

	// State returns the current state of the circuit breaker.
	State() State

	// Name returns the name of this circuit breaker.
	Name() string
}

// circuitBreaker wraps gobreaker.CircuitBreaker with metrics and logging.
type circuitBreaker struct {
	name       string
	breaker    *gobreaker.CircuitBreaker
	metrics    *CircuitBreakerMetrics
	logger     *slog.Logger
	countsFail func(error) bool
}

// CircuitBreakerOption configures a circuit breaker.
type CircuitBreakerOption func(*circuitBreakerOptions)

type circuitBreakerOptions struct {
	metrics    *CircuitBreakerMetrics
	logger     *slog.Logger
	countsFail func(error) bool
}

// WithMetrics sets the metrics for the circuit breaker.
func WithMetrics(m *CircuitBreakerMetrics) CircuitBreakerOption {
	return func(o *circuitBreakerOptions) {
		o.metrics = m
	}
}

// WithLogger sets the logger for the circuit breaker.
func WithLogger(l *slog.Logger) CircuitBreakerOption {
	return func(o *circuitBreakerOptions) {
		o.logger = l
	}
}

// WithFailureClassifier overrides which errors count as infrastructure
// failures toward tripping the breaker. Errors for which fn returns false
// are treated as successes from the breaker's point of view: the request
// still fails and the caller still sees the real error, but it does not
// move the breaker toward open. If fn is nil, DefaultCountsAsFailure is used.
func WithFailureClassifier(fn func(error) bool) CircuitBreakerOption {
	return func(o *circuitBreakerOptions) {
		if fn != nil {
			o.countsFail = fn
		}
	}
}

// DefaultCountsAsFailure reports whether err should count toward tripping
// the circuit. A *sdkerrors.APIRequestError with a 4xx status means the
// ingestion service is reachable and healthy but rejected this particular
// request (bad payload, auth, a triggered limit surfaced as a 4xx) - that is
// not evidence the service itself is failing, so it is excluded. Everything
// else (5xx, network errors, context deadlines) counts.
func DefaultCountsAsFailure(err error) bool {
	var apiErr *sdkerrors.APIRequestError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true
}

// NewCircuitBreaker creates a new circuit breaker with the given name and configuration.
// The circuit breaker will open when the number of consecutive failures reaches the
// configured threshold (FailureThreshold).
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, opts ...CircuitBreakerOption) CircuitBreaker {
	options := &circuitBreakerOptions{
		metrics:    nil,
		logger:     slog.Default(),
		countsFail: DefaultCountsAsFailure,
	}

	for _, opt := range opts {
		opt(options)
	}

	cb := &circuitBreaker{
		name:       name,
		metrics:    options.metrics,
		logger:     options.logger,
		countsFail: options.countsFail,
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.MaxRequests),
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cb.onStateChange(name, from, to)
		},
	}

	cb.breaker = gobreaker.NewCircuitBreaker(settings)

	// Initialize metrics with closed state
	if cb.metrics != nil {
		cb.metrics.SetState(name, stateToInt(StateClosed))
	}

	return cb
}

// Execute runs the given function with circuit breaker protection.
// If the circuit is open, it returns ErrCircuitOpen immediately.
// The context is passed through for cancellation support.
func (cb *circuitBreaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	start := time.Now()

	// realErr captures the error actually produced by fn, so it can be
	// returned to the caller even when it is deliberately hidden from
	// gobreaker's own bookkeeping below.
	var realErr error

	result, err := cb.breaker.Execute(func() (any, error) {
		// Check context cancellation before executing
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res, innerErr := fn()
		realErr = innerErr
		if innerErr != nil && !cb.countsFail(innerErr) {
			// Tell gobreaker this attempt succeeded so an application-level
			// rejection (e.g. a 4xx) never counts toward tripping the
			// breaker. The real error is restored below.
			return res, nil
		}
		return res, innerErr
	})
	if err == nil && realErr != nil {
		err = realErr
	}

	duration := time.Since(start).Seconds()

	// Handle circuit open error
	if errors.Is(err, gobreaker.ErrOpenState) {
		if cb.metrics != nil {
			cb.metrics.RecordOperationDuration(cb.name, "rejected", duration)
		}
		return nil, NewCircuitOpenError(err)
	}

	// Handle too many requests error (circuit is half-open and max requests exceeded)
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		if cb.metrics != nil {
			cb.metrics.RecordOperationDuration(cb.name, "rejected", duration)
		}
		return nil, NewCircuitOpenError(err)
	}

	// Record metrics for success/failure
	if cb.metrics != nil {
		if err != nil {
			cb.metrics.RecordOperationDuration(cb.name, "failure", duration)
		} else {
			cb.metrics.RecordOperationDuration(cb.name, "success", duration)
		}
	}

	return result, err
}

// State returns the current state of the circuit breaker.
func (cb *circuitBreaker) State() State {
	return goStateToState(cb.breaker.State())
}

// Name returns the name of this circuit breaker.
func (cb *circuitBreaker) Name() string {
	return cb.name
}

// onStateChange is called when the circuit breaker state changes.
func (cb *circuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	fromState := goStateToState(from)
	toState := goStateToState(to)

	// Update metrics
	if cb.metrics != nil {
		cb.metrics.SetState(name, stateToInt(toState))
		cb.metrics.RecordTransition(name, string(fromState), string(toState))
	}

	// Log state change
	// Use INFO level for significant transitions (closed→open, any→closed)
	// Use DEBUG level for half-open transitions
	logLevel := slog.LevelDebug
	if to == gobreaker.StateOpen || to == gobreaker.StateClosed {
		logLevel = slog.LevelInfo
	}

	cb.logger.Log(context.Background(), logLevel, "circuit breaker state changed",
		"name", name,
		"previous_state", string(fromState),
		"new_state", string(toState),
		"timestamp", time.Now().Format(time.RFC3339),
	)
}

// DefaultCircuitBreakerConfig returns a CircuitBreakerConfig with sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      DefaultCBMaxRequests,
		Interval:         DefaultCBInterval,
		Timeout:          DefaultCBTimeout,
		FailureThreshold: DefaultCBFailureThreshold,
	}
}
