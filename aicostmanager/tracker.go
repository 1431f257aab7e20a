package aicostmanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/aicostmanager/aicostmanager-go/delivery"
	"github.com/aicostmanager/aicostmanager-go/internal/sdkerrors"
)

// UsageExtractor is the single external capability interface vendor
// adapters implement so the core never special-cases a vendor's response
// shape. Concrete adapters (OpenAI, Anthropic, Bedrock, ...) live outside
// this module; Tracker only calls the interface.
type UsageExtractor interface {
	// ExtractFromResponse pulls usage and the model name out of a
	// vendor-shaped, non-streaming response object. ok is false if resp
	// does not carry a usage block this extractor recognizes.
	ExtractFromResponse(resp any) (model string, usage any, ok bool)

	// ExtractFromStreamEvent inspects one event of a streamed response.
	// Usage may arrive in the final event, nested under a "response.usage"
	// style field, or in a separate metadata frame; ok is false until the
	// event carrying usage is observed.
	ExtractFromStreamEvent(event any) (model string, usage any, ok bool)

	// AttachResponseID lets the adapter stash the assigned response_id
	// back onto the vendor response object for caller correlation, in
	// whatever form makes sense for that vendor's shape.
	AttachResponseID(resp any, responseID string)
}

// Tracker presents one uniform method to callers regardless of which
// delivery strategy is configured underneath.
type Tracker struct {
	delivery     delivery.Delivery
	vendorPrefix func(apiID string) string
}

// NewTracker builds a Tracker around an already-constructed Delivery
// strategy. vendorPrefix derives the "{vendor}" half of a service_key from
// an api_id; if nil, api_id is used verbatim as the vendor prefix.
func NewTracker(d delivery.Delivery, vendorPrefix func(apiID string) string) *Tracker {
	if vendorPrefix == nil {
		vendorPrefix = func(apiID string) string { return apiID }
	}
	return &Tracker{delivery: d, vendorPrefix: vendorPrefix}
}

// Track builds a record from apiID/serviceKey/usage/opts, runs it through
// the configured delivery strategy's pre-check and enqueue path, and
// returns the assigned response_id. A matching blocking limit surfaces as
// *sdkerrors.UsageLimitExceededError before anything is buffered.
func (t *Tracker) Track(ctx context.Context, apiID, serviceKey string, usage any, opts TrackOptions) (string, error) {
	record, err := buildRecord(apiID, serviceKey, usage, opts)
	if err != nil {
		return "", err
	}

	_, err = t.delivery.Enqueue(ctx, record)
	if err != nil {
		// NoCostsTracked is non-fatal: the record was still accepted and
		// assigned a response_id, so callers get both the id and the
		// visibility signal.
		var noCosts *sdkerrors.NoCostsTrackedError
		if errors.As(err, &noCosts) {
			return record.ResponseID, err
		}
		return "", err
	}
	return record.ResponseID, nil
}

// TrackLLMUsage adapts a vendor-shaped response object: it extracts usage
// and model via extractor, computes service_key = "{vendor}::{model}",
// calls Track, and attaches the assigned response_id back onto resp before
// returning it unchanged to the caller.
func (t *Tracker) TrackLLMUsage(ctx context.Context, apiID string, extractor UsageExtractor, resp any, opts TrackOptions) (any, error) {
	model, usage, ok := extractor.ExtractFromResponse(resp)
	if !ok {
		return resp, fmt.Errorf("aicostmanager: extractor found no usage in response for api_id %q", apiID)
	}

	serviceKey := fmt.Sprintf("%s::%s", t.vendorPrefix(apiID), model)
	responseID, err := t.Track(ctx, apiID, serviceKey, usage, opts)
	if err != nil {
		var noCosts *sdkerrors.NoCostsTrackedError
		if !errors.As(err, &noCosts) {
			return resp, err
		}
	}

	extractor.AttachResponseID(resp, responseID)
	return resp, nil
}

// TrackStream wraps a channel of vendor-shaped stream events: every event
// is forwarded unchanged on the returned channel, and at most once per
// stream — as soon as extractor.ExtractFromStreamEvent reports usage — the
// record is built and enqueued in the background. The returned channel is
// closed once events is drained.
func (t *Tracker) TrackStream(ctx context.Context, apiID string, extractor UsageExtractor, events <-chan any, opts TrackOptions) <-chan any {
	out := make(chan any)
	go func() {
		defer close(out)
		tracked := false
		for event := range events {
			if !tracked {
				if model, usage, ok := extractor.ExtractFromStreamEvent(event); ok {
					tracked = true
					serviceKey := fmt.Sprintf("%s::%s", t.vendorPrefix(apiID), model)
					// Errors (including a blocking UsageLimitExceededError)
					// are intentionally swallowed here: once a stream is in
					// flight there is no synchronous caller to propagate to,
					// and events must keep flowing regardless.
					_, _ = t.Track(ctx, apiID, serviceKey, usage, opts)
				}
			}

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
