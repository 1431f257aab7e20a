package aicostmanager

import (
	"context"
	"fmt"

	"github.com/aicostmanager/aicostmanager-go/delivery"
	"github.com/aicostmanager/aicostmanager-go/httpdispatcher"
	"github.com/aicostmanager/aicostmanager-go/ini"
	"github.com/aicostmanager/aicostmanager-go/internal/infra/config"
	"github.com/aicostmanager/aicostmanager-go/internal/infra/resilience"
	"github.com/aicostmanager/aicostmanager-go/internal/sdkerrors"
	"github.com/aicostmanager/aicostmanager-go/internal/shared/redact"
	"github.com/aicostmanager/aicostmanager-go/limits"
)

// DeliveryStrategyName selects which Delivery implementation Client wires
// up, matching the INI layout's [tracker] delivery_manager values.
type DeliveryStrategyName string

const (
	StrategyImmediate       DeliveryStrategyName = "immediate"
	StrategyMemQueue        DeliveryStrategyName = "mem_queue"
	StrategyPersistentQueue DeliveryStrategyName = "persistent_queue"
)

// Client is the top-level SDK facade: one Config, one INI store, one HTTP
// dispatcher, one Delivery strategy, one Triggered-Limits cache/manager,
// and the Tracker built on top of them.
type Client struct {
	Tracker *Tracker

	cfg        *config.Config
	store      *ini.Store
	dispatcher *httpdispatcher.Dispatcher
	delivery   delivery.Delivery
	limits     *limits.Manager
	apiKeyID   string
}

// Option configures a Client at construction, after cfg has been resolved
// but before the delivery strategy and limits manager are wired together.
type Option func(*clientOptions)

type clientOptions struct {
	strategy       DeliveryStrategyName
	apiKeyID       string
	enforcePolicy  limits.EnforcementPolicy
	vendorPrefix   func(apiID string) string
	circuitBreaker bool
}

// WithDeliveryStrategy overrides the delivery strategy selected from the
// INI store / default. Takes precedence over [tracker].delivery_manager.
func WithDeliveryStrategy(name DeliveryStrategyName) Option {
	return func(o *clientOptions) { o.strategy = name }
}

// WithAPIKeyID sets the identifier used to scope triggered-limit matches to
// this credential. Defaults to the configured API key itself when unset.
func WithAPIKeyID(id string) Option {
	return func(o *clientOptions) { o.apiKeyID = id }
}

// WithEnforcementPolicy overrides the default fail-open triggered-limits
// enforcement policy.
func WithEnforcementPolicy(p limits.EnforcementPolicy) Option {
	return func(o *clientOptions) { o.enforcePolicy = p }
}

// WithVendorPrefix overrides how Tracker derives the vendor half of a
// service_key from an api_id.
func WithVendorPrefix(fn func(apiID string) string) Option {
	return func(o *clientOptions) { o.vendorPrefix = fn }
}

// WithCircuitBreaker enables the dispatcher's circuit breaker using the
// resolved Config's circuit-breaker knobs.
func WithCircuitBreaker() Option {
	return func(o *clientOptions) { o.circuitBreaker = true }
}

// New builds a Client from cfg: opens the INI store, constructs the HTTP
// dispatcher, selects and constructs the configured delivery strategy, and
// wires the triggered-limits cache/manager into the delivery pre-check.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg.APIKey == "" {
		return nil, sdkerrors.NewMissingConfiguration("api_key")
	}

	options := &clientOptions{
		enforcePolicy: limits.PolicyFailOpen,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.apiKeyID == "" {
		options.apiKeyID = cfg.APIKey
	}

	store, err := ini.Open(cfg.INIPath)
	if err != nil {
		return nil, fmt.Errorf("aicostmanager: open ini store: %w", err)
	}

	if options.strategy == "" {
		if name, ok, err := store.GetDeliveryManager(); err == nil && ok && name != "" {
			options.strategy = DeliveryStrategyName(name)
		}
	}

	dispatcherOpts := []httpdispatcher.Option{
		httpdispatcher.WithTimeout(cfg.TimeoutExternalAPI),
	}
	if cfg.DeliveryLogBodies {
		dispatcherOpts = append(dispatcherOpts, httpdispatcher.WithLogBodies(redact.NewPIIRedactor(redact.RedactorConfig{})))
	}
	if options.circuitBreaker {
		cb := resilience.NewCircuitBreaker("aicostmanager-ingest", resilience.CircuitBreakerConfig{
			MaxRequests:      cfg.CBMaxRequests,
			Interval:         cfg.CBInterval,
			Timeout:          cfg.CBTimeout,
			FailureThreshold: cfg.CBFailureThreshold,
		})
		dispatcherOpts = append(dispatcherOpts, httpdispatcher.WithCircuitBreaker(cb))
	}

	dispatcher, err := httpdispatcher.New(cfg.APIKey, dispatcherOpts...)
	if err != nil {
		return nil, err
	}

	trackURL := cfg.APIBase + cfg.APIURL + "/track"
	limitsURL := cfg.APIBase + cfg.APIURL + "/triggered-limits"

	cache := limits.NewCache(store)
	limitsManager := limits.NewManager(cache, dispatcher, limitsURL, limits.WithEnforcementPolicy(options.enforcePolicy))

	preCheck := func(ctx context.Context, record delivery.UsageRecord) error {
		matches, err := limitsManager.Check(ctx, options.apiKeyID, record.ServiceKey, record.ClientCustomerKey)
		if err != nil {
			return err
		}
		blocking := limits.Blocking(matches)
		if len(blocking) == 0 {
			return nil
		}
		return sdkerrors.NewUsageLimitExceeded(limits.ToLimitMatches(blocking))
	}
	onLimits := func(envelopeJSON string) error {
		return cache.WriteJSON(envelopeJSON)
	}

	strategy, err := buildDeliveryStrategy(options.strategy, dispatcher, trackURL, preCheck, onLimits, store)
	if err != nil {
		return nil, err
	}

	tracker := NewTracker(strategy, options.vendorPrefix)

	return &Client{
		Tracker:    tracker,
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		delivery:   strategy,
		limits:     limitsManager,
		apiKeyID:   options.apiKeyID,
	}, nil
}

func buildDeliveryStrategy(name DeliveryStrategyName, dispatcher delivery.Poster, trackURL string, preCheck delivery.PreCheckFunc, onLimits delivery.TriggeredLimitsSink, store *ini.Store) (delivery.Delivery, error) {
	switch name {
	case StrategyImmediate, "":
		return delivery.NewImmediate(dispatcher, trackURL, preCheck, onLimits), nil
	case StrategyMemQueue:
		return delivery.NewMemQueue(dispatcher, trackURL, preCheck, onLimits), nil
	case StrategyPersistentQueue:
		dbPath, ok, err := store.GetDeliveryDBPath()
		if err != nil {
			return nil, fmt.Errorf("aicostmanager: read delivery db_path: %w", err)
		}
		if !ok || dbPath == "" {
			return nil, sdkerrors.NewMissingConfiguration("delivery.db_path")
		}
		return delivery.NewPersistentQueue(dbPath, dispatcher, trackURL, preCheck, onLimits)
	default:
		return nil, fmt.Errorf("aicostmanager: unknown delivery strategy %q", name)
	}
}

// Refresh fetches the current triggered-limits envelope from the server
// and writes it to the shared cache. Callers should call this on startup
// and on demand; the core never schedules it automatically.
func (c *Client) Refresh(ctx context.Context) error {
	return c.limits.Refresh(ctx)
}

// Stats reports the configured delivery strategy's observability counters.
func (c *Client) Stats() delivery.Stats {
	return c.delivery.Stats()
}

// Close stops the delivery strategy, blocking until in-flight work
// completes or is durably persisted.
func (c *Client) Close(ctx context.Context) error {
	return c.delivery.Stop(ctx)
}
