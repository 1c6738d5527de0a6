package repository

import (
	"context"
	"time"

	"github.com/heysouravv/social-hour/internal/domain"
)

// SessionStore persists ephemeral waitlist sessions. Get returns nil, nil
// when the session does not exist or has expired.
type SessionStore interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// ChallengeStore keeps locally issued OTP challenges keyed by session. Get
// returns nil, nil when no live challenge exists.
type ChallengeStore interface {
	Put(ctx context.Context, challenge *domain.OTPChallenge, ttl time.Duration) error
	Get(ctx context.Context, session string) (*domain.OTPChallenge, error)
	Delete(ctx context.Context, session string) error
}

// WaitlistRepository records confirmed signups.
type WaitlistRepository interface {
	Upsert(ctx context.Context, entry domain.WaitlistEntry) (domain.WaitlistEntry, error)
}
