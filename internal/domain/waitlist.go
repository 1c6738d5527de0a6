package domain

import "time"

// WaitlistEntry records a visitor whose phone number was verified.
type WaitlistEntry struct {
	ID          int64
	Name        string
	Area        string
	CountryCode string
	Phone       string
	UserInfo    map[string]any
	VerifiedAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
