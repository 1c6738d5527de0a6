// Package jwt signs the waitlist session cookie. The cookie carries only the
// session ID; all flow state lives in the session store.
package jwt

import (
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// CookieSigner is responsible for signing and validating session cookies.
type CookieSigner struct {
	key    SigningKey
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewCookieSigner constructs a signer for the given secret.
func NewCookieSigner(secret, issuer string, ttl time.Duration) (*CookieSigner, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return &CookieSigner{key: key, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// KeyID returns the fingerprint of the active key.
func (s *CookieSigner) KeyID() string {
	return s.key.KID
}

// Sign produces a compact JWT whose subject is the session ID.
func (s *CookieSigner) Sign(sessionID string) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: s.key.Algorithm, Key: s.key.Secret},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", s.key.KID),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := s.now().UTC()
	claims := gojwt.Claims{
		Subject:   sessionID,
		Issuer:    s.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(s.ttl)),
	}

	token, err := gojwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry and returns the session ID.
func (s *CookieSigner) Verify(token string) (string, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{s.key.Algorithm})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	var claims gojwt.Claims
	if err := parsed.Claims(s.key.Secret, &claims); err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	if err := claims.ValidateWithLeeway(gojwt.Expected{Issuer: s.issuer, Time: s.now()}, 0); err != nil {
		return "", fmt.Errorf("validate claims: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("validate claims: missing subject")
	}
	return claims.Subject, nil
}
