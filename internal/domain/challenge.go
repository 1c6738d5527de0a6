package domain

import "time"

// OTPChallenge is a locally issued one-time code awaiting verification.
// Only the argon2id hash of the code is kept.
type OTPChallenge struct {
	Session     string    `json:"session"`
	Phone       string    `json:"phone"`
	CountryCode string    `json:"country_code"`
	CodeHash    string    `json:"code_hash"`
	Attempts    int       `json:"attempts"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is past its deadline.
func (c OTPChallenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
