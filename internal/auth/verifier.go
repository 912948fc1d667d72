package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// PurposeUpload is the only proof purpose this pipeline accepts.
const PurposeUpload = "upload"

var (
	// ErrInvalidProof covers structurally malformed, unsigned, badly signed or
	// expired proofs.
	ErrInvalidProof = errors.New("invalid authorization proof")
	// ErrWrongPurpose means the proof is valid but was issued for another action.
	ErrWrongPurpose = errors.New("authorization proof purpose is not 'upload'")
)

// Claims are the verified contents of an authorization proof.
//
// The proof is a compact JWS: `jti` is the one-time-use proof identifier, `sub`
// the caller's public identity, `purpose` the bound action, and `x` the set of
// content hashes the proof is bound to (may be empty when the issuer does not
// pin content).
type Claims struct {
	Purpose     string   `json:"purpose"`
	BoundHashes []string `json:"x,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the caller's public identity.
func (c *Claims) Identity() string { return c.Subject }

// ProofID returns the unique proof identifier used for replay tracking.
func (c *Claims) ProofID() string { return c.ID }

// Expiry returns the proof expiry instant.
func (c *Claims) Expiry() time.Time { return c.ExpiresAt.Time }

// BindsHash reports whether the proof lists the given content hash.
func (c *Claims) BindsHash(hash string) bool {
	for _, h := range c.BoundHashes {
		if h == hash {
			return true
		}
	}
	return false
}

// Verifier validates authorization proofs. It is a pure checker: verification
// has no side effects and does not consume the proof.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier that checks proofs against the shared HMAC key.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify checks the structural and cryptographic integrity of a proof and
// returns its claims. It fails when the proof is malformed, carries a bad
// signature, is expired or not yet valid, was issued for a purpose other than
// upload, or omits the identifiers replay tracking depends on.
func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if claims.ID == "" || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing jti, sub or exp", ErrInvalidProof)
	}
	if claims.Purpose != PurposeUpload {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

// Sign issues a proof for the given claims with the shared HMAC key. The
// service only verifies proofs; signing lives here for issuers and tests.
func Sign(secret string, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
