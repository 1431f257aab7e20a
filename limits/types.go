// Package limits holds the currently-active limit envelope the server last
// pushed, and answers whether a given (api_key_id, service_key,
// customer_key) tuple is currently blocked. The cache is strictly
// read-through the INI store: decoding and filtering happen on every read,
// and nothing is cached in memory beyond what the store itself synchronizes
// across processes.
package limits

// ThresholdType distinguishes informational alerts from blocking limits.
type ThresholdType string

const (
	ThresholdAlert ThresholdType = "alert"
	ThresholdLimit ThresholdType = "limit"
)

// Period is informational to the core; it is carried through but never
// interpreted locally.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// TriggeredLimit is a concrete, currently-active limit violation the server
// has computed, as decoded from a verified envelope's claims.
type TriggeredLimit struct {
	EventID       string        `json:"event_id"`
	LimitID       string        `json:"limit_id"`
	ThresholdType ThresholdType `json:"threshold_type"`
	Amount        string        `json:"amount,omitempty"`
	Period        Period        `json:"period,omitempty"`

	ServiceID    string   `json:"service_id,omitempty"`
	Vendor       string   `json:"vendor,omitempty"`
	ConfigIDList []string `json:"config_id_list,omitempty"`
	Hostname     string   `json:"hostname,omitempty"`
	// ServiceKey supports legacy envelopes that carry a flat
	// "{vendor}::{service_id}" string instead of separate Vendor/ServiceID
	// fields. Split on read, per the cache's flat-legacy-key rule.
	ServiceKey        string `json:"service_key,omitempty"`
	ClientCustomerKey string `json:"client_customer_key,omitempty"`
	APIKeyID          string `json:"api_key_id,omitempty"`

	TriggeredAt string `json:"triggered_at,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// Blocks reports whether this limit is enforceable rather than merely
// informational.
func (t TriggeredLimit) Blocks() bool {
	return t.ThresholdType == ThresholdLimit
}

// SignedLimitsEnvelope is the on-wire and at-rest form: a signed token whose
// claims carry the triggered-limits list, plus the key material needed to
// verify it. The cache stores this verbatim; it never re-signs or edits it.
type SignedLimitsEnvelope struct {
	Version          string `json:"version"`
	KeyID            string `json:"key_id"`
	PublicKey        string `json:"public_key"`
	EncryptedPayload string `json:"encrypted_payload"`
}
