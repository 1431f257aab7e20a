package limits

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicostmanager/aicostmanager-go/ini"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "AICM.INI")
	store, err := ini.Open(path)
	require.NoError(t, err)
	return NewCache(store)
}

func TestCache_Query_NoEnvelopeWritten(t *testing.T) {
	c := newTestCache(t)

	matches, err := c.Query("key-1", "", "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCache_Write_IsVerbatimAndReadable(t *testing.T) {
	c := newTestCache(t)
	env := signTestEnvelope(t, ExpectedIssuer, []TriggeredLimit{
		{EventID: "evt-1", LimitID: "lim-1", APIKeyID: "key-1", ThresholdType: ThresholdLimit},
	})

	require.NoError(t, c.Write(env))

	read, ok, err := c.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, env.EncryptedPayload, read.EncryptedPayload)
}

func TestCache_Query_FiltersByAPIKeyID(t *testing.T) {
	c := newTestCache(t)
	env := signTestEnvelope(t, ExpectedIssuer, []TriggeredLimit{
		{EventID: "evt-1", LimitID: "lim-1", APIKeyID: "key-1", ThresholdType: ThresholdLimit},
		{EventID: "evt-2", LimitID: "lim-2", APIKeyID: "key-2", ThresholdType: ThresholdLimit},
	})
	require.NoError(t, c.Write(env))

	matches, err := c.Query("key-1", "", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "evt-1", matches[0].EventID)
}

func TestCache_Query_ServiceIDScopeMatchesExact(t *testing.T) {
	c := newTestCache(t)
	env := signTestEnvelope(t, ExpectedIssuer, []TriggeredLimit{
		{EventID: "evt-1", APIKeyID: "key-1", ServiceID: "gpt-4o", ThresholdType: ThresholdLimit},
	})
	require.NoError(t, c.Write(env))

	matches, err := c.Query("key-1", "openai::gpt-4o", "")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	matches, err = c.Query("key-1", "openai::gpt-3.5", "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCache_Query_VendorOnlyScopeMatchesAnyServiceUnderVendor(t *testing.T) {
	c := newTestCache(t)
	env := signTestEnvelope(t, ExpectedIssuer, []TriggeredLimit{
		{EventID: "evt-1", APIKeyID: "key-1", Vendor: "openai", ThresholdType: ThresholdLimit},
	})
	require.NoError(t, c.Write(env))

	matches, err := c.Query("key-1", "openai::gpt-4o", "")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	matches, err = c.Query("key-1", "anthropic::claude-3", "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCache_Query_LegacyFlatServiceKeySplit(t *testing.T) {
	c := newTestCache(t)
	env := signTestEnvelope(t, ExpectedIssuer, []TriggeredLimit{
		{EventID: "evt-1", APIKeyID: "key-1", ServiceKey: "openai::gpt-4o", ThresholdType: ThresholdLimit},
	})
	require.NoError(t, c.Write(env))

	matches, err := c.Query("key-1", "openai::gpt-4o", "")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestCache_Query_NoScopeMatchesAnyService(t *testing.T) {
	c := newTestCache(t)
	env := signTestEnvelope(t, ExpectedIssuer, []TriggeredLimit{
		{EventID: "evt-1", APIKeyID: "key-1", ThresholdType: ThresholdLimit},
	})
	require.NoError(t, c.Write(env))

	matches, err := c.Query("key-1", "openai::gpt-4o", "")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestCache_Query_FiltersByCustomerKey(t *testing.T) {
	c := newTestCache(t)
	env := signTestEnvelope(t, ExpectedIssuer, []TriggeredLimit{
		{EventID: "evt-1", APIKeyID: "key-1", ClientCustomerKey: "cust-1", ThresholdType: ThresholdLimit},
	})
	require.NoError(t, c.Write(env))

	matches, err := c.Query("key-1", "", "cust-1")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	matches, err = c.Query("key-1", "", "cust-2")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCache_Query_VerificationFailureYieldsEmptyAndError(t *testing.T) {
	c := newTestCache(t)
	env := signTestEnvelope(t, "wrong-issuer", nil)
	require.NoError(t, c.Write(env))

	matches, err := c.Query("key-1", "", "")
	assert.Error(t, err)
	assert.Empty(t, matches)
}
