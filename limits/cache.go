package limits

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aicostmanager/aicostmanager-go/ini"
)

// Cache holds the currently-active limit envelope in the shared INI store
// and answers whether a given (api_key_id, service_key, customer_key)
// tuple currently has a matching triggered limit.
type Cache struct {
	store *ini.Store
}

// NewCache wraps an already-open INI store. The cache does not own the
// store's lifecycle; callers close it independently.
func NewCache(store *ini.Store) *Cache {
	return &Cache{store: store}
}

// Write overwrites the stored envelope. Envelopes are stored verbatim; the
// cache never re-signs or edits them.
func (c *Cache) Write(env SignedLimitsEnvelope) error {
	encoded, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.store.SetTriggeredLimitsPayload(string(encoded))
}

// WriteJSON overwrites the stored envelope from an already-serialized JSON
// payload, as returned by a refresh response or a track response's
// triggered_limits echo.
func (c *Cache) WriteJSON(envelopeJSON string) error {
	return c.store.SetTriggeredLimitsPayload(envelopeJSON)
}

// Read returns the stored envelope, or ok=false if nothing has been
// written yet.
func (c *Cache) Read() (SignedLimitsEnvelope, bool, error) {
	raw, ok, err := c.store.GetTriggeredLimitsPayload()
	if err != nil {
		return SignedLimitsEnvelope{}, false, fmt.Errorf("read envelope: %w", err)
	}
	if !ok || raw == "" {
		return SignedLimitsEnvelope{}, false, nil
	}
	var env SignedLimitsEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return SignedLimitsEnvelope{}, false, fmt.Errorf("decode stored envelope: %w", err)
	}
	return env, true, nil
}

// Query verifies the stored envelope and returns every TriggeredLimit
// matching apiKeyID and, if given, serviceKey/customerKey; an empty apiKeyID,
// or a limit without an api_key_id, matches every key. With no envelope
// written it returns an empty list and no error. Any read or verification
// failure (undecodable envelope, bad signature, wrong issuer) returns an
// empty list together with the error, so a caller that ignores the error
// still gets fail-open behavior; callers that want fail-closed enforcement
// should inspect the returned error themselves (see EnforcementPolicy).
func (c *Cache) Query(apiKeyID, serviceKey, customerKey string) ([]TriggeredLimit, error) {
	env, ok, err := c.Read()
	if err != nil || !ok {
		return nil, err
	}

	all, err := verifyEnvelope(env)
	if err != nil {
		return nil, err
	}

	queryVendor, queryServiceID := splitServiceKey(serviceKey)

	matches := make([]TriggeredLimit, 0, len(all))
	for _, limit := range all {
		if !matchesAPIKey(limit, apiKeyID) {
			continue
		}
		if !matchesService(limit, serviceKey, queryVendor, queryServiceID) {
			continue
		}
		if !matchesCustomer(limit, customerKey) {
			continue
		}
		matches = append(matches, limit)
	}
	return matches, nil
}

// splitServiceKey parses "{vendor}::{service_id}" into its parts. A value
// with no "::" separator is treated as a bare service_id with no vendor.
func splitServiceKey(serviceKey string) (vendor, serviceID string) {
	if serviceKey == "" {
		return "", ""
	}
	if vendor, serviceID, found := strings.Cut(serviceKey, "::"); found {
		return vendor, serviceID
	}
	return "", serviceKey
}

func matchesAPIKey(limit TriggeredLimit, apiKeyID string) bool {
	if apiKeyID == "" {
		return true
	}
	if limit.APIKeyID == "" {
		return true
	}
	return limit.APIKeyID == apiKeyID
}

func matchesService(limit TriggeredLimit, rawServiceKey, queryVendor, queryServiceID string) bool {
	limitVendor, limitServiceID := limit.Vendor, limit.ServiceID
	if limitVendor == "" && limitServiceID == "" && limit.ServiceKey != "" {
		limitVendor, limitServiceID = splitServiceKey(limit.ServiceKey)
	}

	noScope := limitVendor == "" && limitServiceID == "" && len(limit.ConfigIDList) == 0 && limit.Hostname == ""
	if noScope {
		return true
	}
	if rawServiceKey == "" {
		// The caller didn't supply a service_key to filter by; don't
		// exclude scoped limits since there's nothing to compare against.
		return true
	}

	if limitServiceID != "" {
		return queryServiceID == limitServiceID
	}
	if limitVendor != "" {
		return queryVendor == limitVendor
	}
	return true
}

func matchesCustomer(limit TriggeredLimit, customerKey string) bool {
	if customerKey == "" || limit.ClientCustomerKey == "" {
		return true
	}
	return limit.ClientCustomerKey == customerKey
}
