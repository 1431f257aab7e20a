// Package delivery implements the three interchangeable delivery
// strategies (immediate, in-memory queue, persistent queue) that ship
// UsageRecords to the ingestion endpoint. All three share the Delivery
// contract and the same retry-policy shape; the "queue" commonality
// between the two queue-based strategies is a composition helper
// (postBatch, Stats), not a base class.
package delivery

import (
	"context"
	"encoding/json"
)

// BodyKey is the fixed JSON key the server expects the batch under:
// {"tracked": [UsageRecord, ...]}.
const BodyKey = "tracked"

// UsageRecord is the unit of delivery: one tracked call to an AI vendor.
type UsageRecord struct {
	APIID             string          `json:"api_id" validate:"required"`
	ServiceKey        string          `json:"service_key,omitempty"`
	ResponseID        string          `json:"response_id" validate:"required"`
	Timestamp         string          `json:"timestamp" validate:"required"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	ClientCustomerKey string          `json:"client_customer_key,omitempty"`
	Context           json.RawMessage `json:"context,omitempty"`
}

// QueueItem is the delivery-internal wrapper around a UsageRecord as it
// sits in a queue-based strategy. ID and Status are meaningful only for
// the persistent queue; the in-memory queue leaves them zero-valued.
type QueueItem struct {
	ID          int64
	Record      UsageRecord
	RetryCount  int
	Status      string
	ScheduledAt int64 // unix seconds
	CreatedAt   int64
	UpdatedAt   int64
}

// Row status values for the persistent queue's state machine.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
)

// Outcome is returned by Enqueue. The synchronous immediate strategy fills
// it from the delivery response; queue-based strategies set only
// ResponseID, since delivery happens asynchronously.
type Outcome struct {
	ResponseID      string
	TriggeredLimits string // raw JSON envelope, if the response carried one
	NoCostsTracked  bool
}

// Stats is the observability snapshot every strategy reports.
type Stats struct {
	Queued      int64
	InFlight    int64
	TotalSent   int64
	TotalFailed int64
	LastError   string
	WorkerAlive bool
}

// PreCheckFunc consults the Triggered-Limits Cache before a record is
// buffered. It returns a *sdkerrors.UsageLimitExceededError to block
// delivery, or nil to proceed.
type PreCheckFunc func(ctx context.Context, record UsageRecord) error

// TriggeredLimitsSink persists a triggered_limits envelope extracted from a
// successful response, overwriting the Triggered-Limits Cache.
type TriggeredLimitsSink func(envelopeJSON string) error

// Delivery is the shared contract all three strategies implement.
type Delivery interface {
	// Enqueue hands a record to the engine for shipment. It runs the
	// record through the pre-check hook first; on a limit match it
	// returns the pre-check error and never buffers the record.
	Enqueue(ctx context.Context, record UsageRecord) (Outcome, error)

	// Deliver hands a pre-built batch directly to the engine, bypassing
	// per-record buffering. Used for callers that have already grouped
	// records themselves.
	Deliver(ctx context.Context, records []UsageRecord) error

	// Stop initiates graceful shutdown. It blocks until in-flight work
	// completes or is durably persisted. Stop is idempotent.
	Stop(ctx context.Context) error

	// Stats reports current observability counters.
	Stats() Stats
}
