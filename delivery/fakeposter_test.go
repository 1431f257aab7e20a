package delivery

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aicostmanager/aicostmanager-go/httpdispatcher"
)

// fakePoster is a test double for Poster that records every call and
// returns a scripted sequence of responses/errors.
type fakePoster struct {
	mu    sync.Mutex
	calls []map[string]any

	// responses is consumed in order; once exhausted the last entry repeats.
	responses []fakePosterResult

	// block, if non-nil, is waited on inside every Post call, letting a
	// test hold a call open to pin down scheduling. started counts calls
	// that have entered Post, including ones currently blocked.
	block   chan struct{}
	started atomic.Int32
}

type fakePosterResult struct {
	resp *httpdispatcher.Response
	err  error
}

func (f *fakePoster) Post(_ context.Context, _ string, body any, _ int) (*httpdispatcher.Response, error) {
	f.started.Add(1)
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok := body.(map[string]any); ok {
		f.calls = append(f.calls, m)
	}

	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	if idx < 0 {
		return &httpdispatcher.Response{StatusCode: 200, Body: map[string]any{}}, nil
	}
	r := f.responses[idx]
	return r.resp, r.err
}

func (f *fakePoster) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakePoster) startedCount() int {
	return int(f.started.Load())
}

func successResponse(withCostEvents bool) *httpdispatcher.Response {
	events := []any{}
	if withCostEvents {
		events = []any{map[string]any{"id": "evt-1"}}
	}
	return &httpdispatcher.Response{
		StatusCode: 200,
		Body: map[string]any{
			"results": []any{
				map[string]any{"cost_events": events},
			},
		},
	}
}

func limitsResponse() *httpdispatcher.Response {
	return &httpdispatcher.Response{
		StatusCode: 200,
		Body: map[string]any{
			"results": []any{
				map[string]any{"cost_events": []any{map[string]any{"id": "evt-1"}}},
			},
			"triggered_limits": map[string]any{"envelope": "signed-blob"},
		},
	}
}
