package delivery

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/aicostmanager/aicostmanager-go/httpdispatcher"
)

// Poster is the subset of *httpdispatcher.Dispatcher every strategy needs.
// Declaring it as an interface keeps the strategies testable without a
// live HTTP server.
type Poster interface {
	Post(ctx context.Context, url string, body any, maxAttempts int) (*httpdispatcher.Response, error)
}

// counters is an atomic, composable stats block embedded by every
// strategy. It is not a base class: strategies compose it as a field and
// call its methods directly, per the "composition, not inheritance" design
// note.
type counters struct {
	totalSent   atomic.Int64
	totalFailed atomic.Int64
	lastError   atomic.Value // string
}

func (c *counters) recordSuccess(n int) {
	c.totalSent.Add(int64(n))
}

func (c *counters) recordFailure(n int, err error) {
	c.totalFailed.Add(int64(n))
	if err != nil {
		c.lastError.Store(err.Error())
	}
}

func (c *counters) snapshot() (sent, failed int64, lastErr string) {
	sent = c.totalSent.Load()
	failed = c.totalFailed.Load()
	if v := c.lastError.Load(); v != nil {
		lastErr = v.(string)
	}
	return
}

// postBatch sends records to url as {"tracked": [...]}, and when the
// response carries a triggered_limits field, forwards it (re-marshaled
// verbatim) to sink. Returns the decoded response on success.
func postBatch(ctx context.Context, poster Poster, url string, records []UsageRecord, maxAttempts int, sink TriggeredLimitsSink) (*httpdispatcher.Response, error) {
	body := map[string]any{BodyKey: records}

	resp, err := poster.Post(ctx, url, body, maxAttempts)
	if err != nil {
		return nil, err
	}

	if sink != nil {
		if raw, ok := resp.Body["triggered_limits"]; ok && raw != nil {
			encoded, marshalErr := json.Marshal(raw)
			if marshalErr == nil {
				_ = sink(string(encoded))
			}
		}
	}

	return resp, nil
}

// hasCostEvents reports whether resp's results[0].cost_events array is
// non-empty. Absent/malformed results are treated as "no cost events"
// rather than an error, per the immediate strategy's NoCostsTracked rule.
func hasCostEvents(resp *httpdispatcher.Response) bool {
	if resp == nil {
		return false
	}
	results, ok := resp.Body["results"].([]any)
	if !ok || len(results) == 0 {
		return false
	}
	first, ok := results[0].(map[string]any)
	if !ok {
		return false
	}
	events, ok := first["cost_events"].([]any)
	return ok && len(events) > 0
}

// runPreCheck invokes preCheck if set, returning its error (typically a
// *sdkerrors.UsageLimitExceededError) unchanged.
func runPreCheck(ctx context.Context, preCheck PreCheckFunc, record UsageRecord) error {
	if preCheck == nil {
		return nil
	}
	return preCheck(ctx, record)
}
