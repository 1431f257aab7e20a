package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aicostmanager/aicostmanager-go/internal/sdkerrors"
)

// ImmediateMaxAttempts is the fixed retry budget for the immediate
// strategy's synchronous send.
const ImmediateMaxAttempts = 3

// Immediate ships every record synchronously on the caller's goroutine,
// with a bounded retry budget. It has no background worker: Stop does
// nothing, and does not close the dispatcher's HTTP client or its idle
// connections.
type Immediate struct {
	poster   Poster
	trackURL string
	preCheck PreCheckFunc
	onLimits TriggeredLimitsSink
	counters counters
}

// NewImmediate builds an Immediate strategy that POSTs to trackURL.
func NewImmediate(poster Poster, trackURL string, preCheck PreCheckFunc, onLimits TriggeredLimitsSink) *Immediate {
	return &Immediate{
		poster:   poster,
		trackURL: trackURL,
		preCheck: preCheck,
		onLimits: onLimits,
	}
}

// Enqueue ships record synchronously. On success it returns an Outcome
// carrying any triggered_limits envelope and a NoCostsTracked flag; on a
// non-2xx response it returns *sdkerrors.APIRequestError.
func (s *Immediate) Enqueue(ctx context.Context, record UsageRecord) (Outcome, error) {
	if err := runPreCheck(ctx, s.preCheck, record); err != nil {
		return Outcome{}, err
	}

	resp, err := postBatch(ctx, s.poster, s.trackURL, []UsageRecord{record}, ImmediateMaxAttempts, s.onLimits)
	if err != nil {
		s.counters.recordFailure(1, err)
		return Outcome{}, err
	}
	s.counters.recordSuccess(1)

	var envelope string
	if raw, ok := resp.Body["triggered_limits"]; ok && raw != nil {
		if b, mErr := marshalLimits(raw); mErr == nil {
			envelope = b
		}
	}

	outcome := Outcome{ResponseID: record.ResponseID, TriggeredLimits: envelope}
	if !hasCostEvents(resp) {
		outcome.NoCostsTracked = true
		return outcome, sdkerrors.NewNoCostsTracked(record.ResponseID)
	}
	return outcome, nil
}

// Deliver ships a pre-built batch synchronously.
func (s *Immediate) Deliver(ctx context.Context, records []UsageRecord) error {
	if _, err := postBatch(ctx, s.poster, s.trackURL, records, ImmediateMaxAttempts, s.onLimits); err != nil {
		s.counters.recordFailure(len(records), err)
		return err
	}
	s.counters.recordSuccess(len(records))
	return nil
}

// Stop is a no-op beyond satisfying the Delivery contract: the immediate
// strategy has no background worker or durable state to drain.
func (s *Immediate) Stop(_ context.Context) error {
	return nil
}

// Stats reports send counters. Queued/InFlight/WorkerAlive are always zero
// since the immediate strategy buffers nothing.
func (s *Immediate) Stats() Stats {
	sent, failed, lastErr := s.counters.snapshot()
	return Stats{TotalSent: sent, TotalFailed: failed, LastError: lastErr}
}

func marshalLimits(raw any) (string, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("marshal triggered_limits: %w", err)
	}
	return string(b), nil
}

var _ Delivery = (*Immediate)(nil)
