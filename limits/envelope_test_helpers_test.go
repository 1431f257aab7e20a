package limits

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// signTestEnvelope generates a fresh RSA key pair, signs claims carrying
// limits as RS256 with the given issuer, and returns a ready-to-store
// SignedLimitsEnvelope.
func signTestEnvelope(t *testing.T, issuer string, triggeredLimits []TriggeredLimit) SignedLimitsEnvelope {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	claims := envelopeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(time.Now()),
			ID:       "test-jti",
		},
		TriggeredLimits: triggeredLimits,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	return SignedLimitsEnvelope{
		Version:          "1",
		KeyID:            "test-key",
		PublicKey:        string(pubPEM),
		EncryptedPayload: signed,
	}
}
