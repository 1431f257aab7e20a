package limits

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ExpectedIssuer is the iss claim every envelope must carry. It is fixed
// rather than configurable: the SDK only ever trusts one signer.
const ExpectedIssuer = "aicm-api"

// ErrEnvelopeVerification wraps any failure to verify or decode an
// envelope: malformed PEM key, bad signature, wrong algorithm, unexpected
// issuer, or unparseable claims. Callers treat it as "no limits known",
// per the fail-open default (see EnforcementPolicy).
var ErrEnvelopeVerification = errors.New("limits: envelope verification failed")

// envelopeClaims is the claim set embedded in a SignedLimitsEnvelope's
// EncryptedPayload. Embedding jwt.RegisteredClaims lets the library check
// iss (against ExpectedIssuer) and any exp/nbf present instead of
// hand-rolled field checks; iat and jti are decoded but not validated.
type envelopeClaims struct {
	jwt.RegisteredClaims
	TriggeredLimits []TriggeredLimit `json:"triggered_limits"`
}

// verifyEnvelope checks env's signature against its own embedded public
// key, restricted to RS256 and the expected issuer, and returns the
// decoded triggered-limits list on success.
//
// The public key travels inside the envelope itself (spec §3), so this is
// not a trust-on-first-use scheme: the server is trusted to have signed
// with the private half of whatever key_id it advertises, the same way a
// CDN-delivered JWKS would be, just pushed inline instead of fetched.
func verifyEnvelope(env SignedLimitsEnvelope) ([]TriggeredLimit, error) {
	if env.PublicKey == "" || env.EncryptedPayload == "" {
		return nil, fmt.Errorf("%w: empty envelope", ErrEnvelopeVerification)
	}

	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(env.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", ErrEnvelopeVerification, err)
	}

	var claims envelopeClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(ExpectedIssuer),
	)
	_, err = parser.ParseWithClaims(env.EncryptedPayload, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeVerification, err)
	}

	return claims.TriggeredLimits, nil
}
