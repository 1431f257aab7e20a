package limits

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aicostmanager/aicostmanager-go/httpdispatcher"
	"github.com/aicostmanager/aicostmanager-go/internal/sdkerrors"
)

// Getter is the subset of *httpdispatcher.Dispatcher the Manager needs to
// refresh the envelope. Declared as an interface for testability.
type Getter interface {
	Get(ctx context.Context, url string) (*httpdispatcher.Response, error)
}

// EnforcementPolicy controls what Manager.Check does when envelope
// verification itself fails (malformed envelope, bad signature, wrong
// issuer) — as distinct from verification succeeding and simply finding no
// matching limit.
type EnforcementPolicy int

const (
	// PolicyFailOpen treats a verification failure as "no limits known"
	// and lets traffic through. This is the default, matching the
	// original client's behavior of returning an empty list on any
	// decode error.
	PolicyFailOpen EnforcementPolicy = iota
	// PolicyFailClosed treats a verification failure as a blocking
	// condition, returning a UsageLimitExceededError rather than letting
	// unverifiable traffic through.
	PolicyFailClosed
)

// Manager orchestrates envelope refresh and exposes the pre-check query
// Tracker needs. The core never schedules refresh itself: callers refresh
// on startup, after a successful delivery that didn't echo
// triggered_limits, or on demand.
type Manager struct {
	cache  *Cache
	getter Getter
	url    string
	policy EnforcementPolicy
}

// ManagerOption configures a Manager at construction.
type ManagerOption func(*Manager)

// WithEnforcementPolicy overrides the default fail-open policy.
func WithEnforcementPolicy(p EnforcementPolicy) ManagerOption {
	return func(m *Manager) { m.policy = p }
}

// NewManager builds a Manager backed by cache, fetching refreshes from url.
func NewManager(cache *Cache, getter Getter, url string, opts ...ManagerOption) *Manager {
	m := &Manager{cache: cache, getter: getter, url: url, policy: PolicyFailOpen}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Refresh fetches the current envelope from the server and writes it to
// the cache, normalizing the optional outer "triggered_limits" wrapper key
// some responses use.
func (m *Manager) Refresh(ctx context.Context) error {
	resp, err := m.getter.Get(ctx, m.url)
	if err != nil {
		return fmt.Errorf("refresh triggered limits: %w", err)
	}

	body := resp.Body
	if wrapped, ok := body["triggered_limits"].(map[string]any); ok {
		body = wrapped
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("re-encode triggered limits envelope: %w", err)
	}
	return m.cache.WriteJSON(string(encoded))
}

// Check is a convenience wrapper around Cache.Query that applies this
// manager's enforcement policy: on a verification failure it either
// returns an empty, non-error result (fail-open) or a
// UsageLimitExceededError sentinel (fail-closed). Both paths discard the
// underlying verification error; callers that need the raw cause should
// call Cache.Query directly.
func (m *Manager) Check(ctx context.Context, apiKeyID, serviceKey, customerKey string) ([]TriggeredLimit, error) {
	matches, err := m.cache.Query(apiKeyID, serviceKey, customerKey)
	if err != nil {
		if m.policy == PolicyFailClosed {
			return nil, sdkerrors.NewUsageLimitExceeded(nil)
		}
		return nil, nil
	}
	return matches, nil
}

// Blocking filters limits down to the ones whose threshold_type actually
// blocks delivery, excluding informational alerts.
func Blocking(limits []TriggeredLimit) []TriggeredLimit {
	blocking := make([]TriggeredLimit, 0, len(limits))
	for _, l := range limits {
		if l.Blocks() {
			blocking = append(blocking, l)
		}
	}
	return blocking
}

// ToLimitMatches converts TriggeredLimits into the minimal view
// sdkerrors.UsageLimitExceededError carries, avoiding an import cycle
// between this package and sdkerrors.
func ToLimitMatches(limits []TriggeredLimit) []sdkerrors.LimitMatch {
	matches := make([]sdkerrors.LimitMatch, len(limits))
	for i, l := range limits {
		matches[i] = sdkerrors.LimitMatch{
			EventID:       l.EventID,
			LimitID:       l.LimitID,
			ThresholdType: string(l.ThresholdType),
			ServiceID:     l.ServiceID,
			Vendor:        l.Vendor,
			Message:       fmt.Sprintf("limit %s triggered for api_key_id=%s", l.LimitID, l.APIKeyID),
		}
	}
	return matches
}
