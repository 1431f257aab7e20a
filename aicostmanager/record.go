// Package aicostmanager is the public entry point: Client wires the INI
// store, HTTP dispatcher, delivery strategy, and triggered-limits cache
// together behind a single Track/TrackLLMUsage/TrackStream surface.
package aicostmanager

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aicostmanager/aicostmanager-go/delivery"
)

// recordValidator enforces the UsageRecord invariants declared as struct
// tags: api_id, response_id, and timestamp are all required non-empty.
// Validators are safe for concurrent use once built, so one shared instance
// serves every buildRecord call.
var recordValidator = validator.New()

// TrackOptions carries the optional fields of a track() call. Zero value is
// valid: every field is omitted from the wire record unless non-empty.
type TrackOptions struct {
	ResponseID        string
	Timestamp         time.Time
	ClientCustomerKey string
	Context           any
}

// newResponseID returns a 128-bit random value hex-encoded with no dashes,
// matching "a new 128-bit random hex" in the record assembly rules. A v4
// UUID is exactly 128 random-ish bits; hex-encoding its raw bytes directly
// (rather than UUID's dashed string form) gives the server the bare hex it
// expects.
func newResponseID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate response_id: %w", err)
	}
	return hex.EncodeToString(id[:]), nil
}

// formatTimestamp renders t as UTC with microsecond precision and no
// trailing "Z" variant, matching the server validator's expected format.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000")
}

// buildRecord assembles a delivery.UsageRecord from the caller-supplied
// apiID/serviceKey/payload plus opts, filling in response_id and timestamp
// defaults and dropping any optional field left zero-valued.
func buildRecord(apiID, serviceKey string, payload any, opts TrackOptions) (delivery.UsageRecord, error) {
	responseID := opts.ResponseID
	if responseID == "" {
		id, err := newResponseID()
		if err != nil {
			return delivery.UsageRecord{}, err
		}
		responseID = id
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return delivery.UsageRecord{}, fmt.Errorf("aicostmanager: marshal payload: %w", err)
	}

	record := delivery.UsageRecord{
		APIID:             apiID,
		ServiceKey:        serviceKey,
		ResponseID:        responseID,
		Timestamp:         formatTimestamp(ts),
		Payload:           payloadJSON,
		ClientCustomerKey: opts.ClientCustomerKey,
	}

	if opts.Context != nil {
		ctxJSON, err := json.Marshal(opts.Context)
		if err != nil {
			return delivery.UsageRecord{}, fmt.Errorf("aicostmanager: marshal context: %w", err)
		}
		record.Context = ctxJSON
	}

	if err := recordValidator.Struct(record); err != nil {
		return delivery.UsageRecord{}, fmt.Errorf("aicostmanager: invalid usage record: %w", err)
	}

	return record, nil
}
