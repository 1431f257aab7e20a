package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyEnvelope_ValidSignature(t *testing.T) {
	env := signTestEnvelope(t, ExpectedIssuer, []TriggeredLimit{
		{EventID: "evt-1", LimitID: "lim-1", ThresholdType: ThresholdLimit},
	})

	limits, err := verifyEnvelope(env)
	require.NoError(t, err)
	require.Len(t, limits, 1)
	assert.Equal(t, "evt-1", limits[0].EventID)
}

func TestVerifyEnvelope_WrongIssuerFails(t *testing.T) {
	env := signTestEnvelope(t, "someone-else", nil)

	_, err := verifyEnvelope(env)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnvelopeVerification)
}

func TestVerifyEnvelope_TamperedPayloadFails(t *testing.T) {
	env := signTestEnvelope(t, ExpectedIssuer, nil)
	env.EncryptedPayload = env.EncryptedPayload[:len(env.EncryptedPayload)-4] + "abcd"

	_, err := verifyEnvelope(env)
	require.Error(t, err)
}

func TestVerifyEnvelope_EmptyEnvelopeFails(t *testing.T) {
	_, err := verifyEnvelope(SignedLimitsEnvelope{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnvelopeVerification)
}

func TestVerifyEnvelope_MalformedPublicKeyFails(t *testing.T) {
	env := signTestEnvelope(t, ExpectedIssuer, nil)
	env.PublicKey = "not a pem key"

	_, err := verifyEnvelope(env)
	require.Error(t, err)
}
