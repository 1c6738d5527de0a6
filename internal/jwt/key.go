package jwt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/go-jose/go-jose/v4"
)

// SigningKey is the HMAC key session cookies are signed with.
type SigningKey struct {
	KID       string
	Secret    []byte
	Algorithm jose.SignatureAlgorithm
}

// DeriveKey stretches the configured secret to a 256-bit HS256 key. The key
// ID is a short fingerprint so rotated secrets can be told apart in logs.
func DeriveKey(secret string) (SigningKey, error) {
	if secret == "" {
		return SigningKey{}, errors.New("session secret is empty")
	}
	sum := sha256.Sum256([]byte(secret))
	fp := sha256.Sum256(sum[:])
	return SigningKey{
		KID:       hex.EncodeToString(fp[:4]),
		Secret:    sum[:],
		Algorithm: jose.HS256,
	}, nil
}
