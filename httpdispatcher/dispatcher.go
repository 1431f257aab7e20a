// Package httpdispatcher performs the single outbound HTTP call every
// delivery strategy funnels through: one POST, bearer-authenticated, with
// retry+backoff, an optional circuit breaker, a context timeout, metrics,
// and tracing.
package httpdispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aicostmanager/aicostmanager-go/internal/infra/resilience"
	"github.com/aicostmanager/aicostmanager-go/internal/sdkerrors"
	"github.com/aicostmanager/aicostmanager-go/internal/shared/logger"
	"github.com/aicostmanager/aicostmanager-go/internal/shared/redact"
)

// UserAgent is sent on every request unless overridden via WithUserAgent.
const UserAgent = "aicostmanager-go/1"

// DefaultBaseDelay and DefaultMaxDelay implement the spec's retry policy:
// exponential backoff with jitter, base 1s, cap 30s.
const (
	DefaultBaseDelay = 1 * time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// DefaultTimeout bounds a single POST attempt (not the whole retry budget).
const DefaultTimeout = 10 * time.Second

// Response is the successful outcome of Post: a 2xx status with a decoded
// JSON body.
type Response struct {
	StatusCode int
	Body       map[string]any
	RawBody    []byte
}

// Dispatcher performs one POST of a JSON body with bearer auth and a
// user-agent header, applying a retry policy. A Dispatcher is safe for
// concurrent use.
type Dispatcher struct {
	client    *http.Client
	apiKey    string
	userAgent string
	timeout   time.Duration

	retrier resilience.Retrier
	breaker resilience.CircuitBreaker

	logBodies bool
	redactor  redact.Redactor
	log       *slog.Logger

	metrics *Metrics
	tracer  Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the underlying *http.Client. Defaults to
// http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithUserAgent overrides the User-Agent header. Defaults to UserAgent.
func WithUserAgent(ua string) Option {
	return func(d *Dispatcher) { d.userAgent = ua }
}

// WithTimeout overrides the per-attempt context timeout. Defaults to
// DefaultTimeout.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithCircuitBreaker enables a circuit breaker around every attempt.
func WithCircuitBreaker(cb resilience.CircuitBreaker) Option {
	return func(d *Dispatcher) { d.breaker = cb }
}

// WithRetrier overrides the retry policy applied to every Post/Get attempt.
// Defaults to a 3-attempt exponential backoff (DefaultBaseDelay..DefaultMaxDelay)
// if not set.
func WithRetrier(r resilience.Retrier) Option {
	return func(d *Dispatcher) { d.retrier = r }
}

// WithLogBodies enables redacted request/response body logging, mirroring
// AICM_DELIVERY_LOG_BODIES.
func WithLogBodies(redactor redact.Redactor) Option {
	return func(d *Dispatcher) {
		d.logBodies = true
		d.redactor = redactor
	}
}

// WithLogger overrides the *slog.Logger used for dispatch logging.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer attaches OpenTelemetry span instrumentation.
func WithTracer(t Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// New builds a Dispatcher. apiKey is sent as a bearer token on every
// request; the dispatcher never refreshes it.
func New(apiKey string, opts ...Option) (*Dispatcher, error) {
	if apiKey == "" {
		return nil, sdkerrors.NewMissingConfiguration("api_key")
	}

	d := &Dispatcher{
		client:    http.DefaultClient,
		apiKey:    apiKey,
		userAgent: UserAgent,
		timeout:   DefaultTimeout,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.retrier == nil {
		d.retrier = resilience.NewRetrier("httpdispatcher", resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: DefaultBaseDelay,
			MaxDelay:     DefaultMaxDelay,
			Multiplier:   2.0,
		}, resilience.WithRetryableFunc(isRetryable), resilience.WithRetryLogger(d.log))
	}

	return d, nil
}

// Post performs one JSON POST to url, retrying transient failures up to
// maxAttempts times. maxAttempts <= 0 uses the dispatcher's configured
// default (3).
func (d *Dispatcher) Post(ctx context.Context, url string, body any, maxAttempts int) (*Response, error) {
	const op = "httpdispatcher.Post"

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request body: %w", op, err)
	}

	retrier := d.retrier
	if maxAttempts > 0 {
		retrier = resilience.NewRetrier("httpdispatcher", resilience.RetryConfig{
			MaxAttempts:  maxAttempts,
			InitialDelay: DefaultBaseDelay,
			MaxDelay:     DefaultMaxDelay,
			Multiplier:   2.0,
		}, resilience.WithRetryableFunc(isRetryable), resilience.WithRetryLogger(d.log))
	}

	log := logger.FromContext(ctx, d.log)
	d.logRequest(log, url, payload)

	var resp *Response
	attempts := 0
	doOnce := func(ctx context.Context) error {
		attempts++
		r, doErr := d.doOnce(ctx, url, payload)
		if doErr != nil {
			return doErr
		}
		resp = r
		return nil
	}

	start := time.Now()
	var execErr error
	if d.breaker != nil {
		_, execErr = d.breaker.Execute(ctx, func() (any, error) {
			return nil, retrier.Do(ctx, doOnce)
		})
	} else {
		execErr = retrier.Do(ctx, doOnce)
	}
	duration := time.Since(start)

	if d.metrics != nil {
		d.metrics.ObserveRequest(url, resp, execErr, duration)
	}
	if d.tracer != nil {
		d.tracer.RecordPost(ctx, url, attempts, duration, execErr)
	}

	if execErr != nil {
		var apiErr *sdkerrors.APIRequestError
		if errors.As(execErr, &apiErr) {
			return nil, apiErr
		}
		return nil, sdkerrors.NewDeliveryTransient(attempts, execErr)
	}

	d.logResponse(log, resp)
	return resp, nil
}

// Get performs one authenticated GET to url, retrying transient failures
// under the dispatcher's default retry policy. Used for the triggered-limits
// refresh call, which has no request body.
func (d *Dispatcher) Get(ctx context.Context, url string) (*Response, error) {
	const op = "httpdispatcher.Get"

	log := logger.FromContext(ctx, d.log)

	var resp *Response
	attempts := 0
	doOnce := func(ctx context.Context) error {
		attempts++
		r, doErr := d.doRequest(ctx, http.MethodGet, url, nil)
		if doErr != nil {
			return doErr
		}
		resp = r
		return nil
	}

	start := time.Now()
	var execErr error
	if d.breaker != nil {
		_, execErr = d.breaker.Execute(ctx, func() (any, error) {
			return nil, d.retrier.Do(ctx, doOnce)
		})
	} else {
		execErr = d.retrier.Do(ctx, doOnce)
	}
	duration := time.Since(start)

	if d.metrics != nil {
		d.metrics.ObserveRequest(url, resp, execErr, duration)
	}
	if d.tracer != nil {
		d.tracer.RecordPost(ctx, url, attempts, duration, execErr)
	}

	if execErr != nil {
		var apiErr *sdkerrors.APIRequestError
		if errors.As(execErr, &apiErr) {
			return nil, apiErr
		}
		return nil, fmt.Errorf("%s: %w", op, sdkerrors.NewDeliveryTransient(attempts, execErr))
	}

	d.logResponse(log, resp)
	return resp, nil
}

func (d *Dispatcher) doOnce(ctx context.Context, url string, payload []byte) (*Response, error) {
	return d.doRequest(ctx, http.MethodPost, url, payload)
}

func (d *Dispatcher) doRequest(ctx context.Context, method, url string, payload []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("User-Agent", d.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := d.client.Do(req)
	if err != nil {
		return nil, err // net.Error, classified by isRetryable
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		var decoded map[string]any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, fmt.Errorf("decode response body: %w", err)
			}
		}
		return &Response{StatusCode: httpResp.StatusCode, Body: decoded, RawBody: raw}, nil
	}

	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded) // error bodies are best-effort JSON

	return nil, sdkerrors.NewAPIRequestError(httpResp.StatusCode, decoded, raw)
}

func (d *Dispatcher) logRequest(log *slog.Logger, url string, payload []byte) {
	if !d.logBodies {
		return
	}
	body := logBody(d.redactor, payload)
	log.Debug("dispatching request", logger.String("url", url), logger.Any("body", body))
}

func (d *Dispatcher) logResponse(log *slog.Logger, resp *Response) {
	if !d.logBodies || resp == nil {
		return
	}
	body := logBody(d.redactor, resp.RawBody)
	log.Debug("received response", logger.Int("status", resp.StatusCode), logger.Any("body", body))
}

func logBody(redactor redact.Redactor, raw []byte) any {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "<non-json body omitted>"
	}
	if redactor == nil {
		return decoded
	}
	return redactor.Redact(decoded)
}
