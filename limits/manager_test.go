package limits

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicostmanager/aicostmanager-go/httpdispatcher"
	"github.com/aicostmanager/aicostmanager-go/internal/sdkerrors"
)

type fakeGetter struct {
	resp *httpdispatcher.Response
	err  error
}

func (f *fakeGetter) Get(_ context.Context, _ string) (*httpdispatcher.Response, error) {
	return f.resp, f.err
}

func TestManager_Refresh_UnwrapsOuterKey(t *testing.T) {
	env := signTestEnvelope(t, ExpectedIssuer, []TriggeredLimit{
		{EventID: "evt-1", APIKeyID: "key-1", ThresholdType: ThresholdLimit},
	})
	envJSON, err := json.Marshal(env)
	require.NoError(t, err)
	var wrapped map[string]any
	require.NoError(t, json.Unmarshal(envJSON, &wrapped))

	getter := &fakeGetter{resp: &httpdispatcher.Response{
		StatusCode: 200,
		Body:       map[string]any{"triggered_limits": wrapped},
	}}

	cache := newTestCache(t)
	m := NewManager(cache, getter, "https://api.example.com/triggered-limits")

	require.NoError(t, m.Refresh(context.Background()))

	matches, err := cache.Query("key-1", "", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "evt-1", matches[0].EventID)
}

func TestManager_Refresh_AcceptsUnwrappedBody(t *testing.T) {
	env := signTestEnvelope(t, ExpectedIssuer, []TriggeredLimit{
		{EventID: "evt-1", APIKeyID: "key-1", ThresholdType: ThresholdLimit},
	})
	envJSON, err := json.Marshal(env)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(envJSON, &body))

	getter := &fakeGetter{resp: &httpdispatcher.Response{StatusCode: 200, Body: body}}

	cache := newTestCache(t)
	m := NewManager(cache, getter, "https://api.example.com/triggered-limits")

	require.NoError(t, m.Refresh(context.Background()))

	matches, err := cache.Query("key-1", "", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestManager_Check_FailOpenReturnsEmptyOnVerificationFailure(t *testing.T) {
	cache := newTestCache(t)
	env := signTestEnvelope(t, "wrong-issuer", nil)
	require.NoError(t, cache.Write(env))

	m := NewManager(cache, &fakeGetter{}, "https://api.example.com/triggered-limits")

	matches, err := m.Check(context.Background(), "key-1", "", "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestManager_Check_FailClosedReturnsUsageLimitExceeded(t *testing.T) {
	cache := newTestCache(t)
	env := signTestEnvelope(t, "wrong-issuer", nil)
	require.NoError(t, cache.Write(env))

	m := NewManager(cache, &fakeGetter{}, "https://api.example.com/triggered-limits",
		WithEnforcementPolicy(PolicyFailClosed))

	_, err := m.Check(context.Background(), "key-1", "", "")
	var limitErr *sdkerrors.UsageLimitExceededError
	require.ErrorAs(t, err, &limitErr)
}

func TestBlocking_ExcludesAlerts(t *testing.T) {
	limits := []TriggeredLimit{
		{EventID: "evt-1", ThresholdType: ThresholdLimit},
		{EventID: "evt-2", ThresholdType: ThresholdAlert},
	}
	blocking := Blocking(limits)
	require.Len(t, blocking, 1)
	assert.Equal(t, "evt-1", blocking[0].EventID)
}

func TestToLimitMatches_PreservesScopingFields(t *testing.T) {
	matches := ToLimitMatches([]TriggeredLimit{
		{EventID: "evt-1", LimitID: "lim-1", Vendor: "openai", ServiceID: "gpt-4o", ThresholdType: ThresholdLimit},
	})
	require.Len(t, matches, 1)
	assert.Equal(t, "openai", matches[0].Vendor)
	assert.Equal(t, "gpt-4o", matches[0].ServiceID)
}
