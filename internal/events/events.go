// Package events publishes waitlist domain events to downstream consumers.
package events

import (
	"context"
	"time"
)

// TypeWaitlistJoined is emitted once a visitor's phone number is verified.
const TypeWaitlistJoined = "waitlist.joined"

// Event is the JSON payload written for every published event.
type Event struct {
	Type        string    `json:"type"`
	EntryID     int64     `json:"entry_id,string"`
	SessionID   string    `json:"session_id"`
	Name        string    `json:"name"`
	Area        string    `json:"area"`
	CountryCode string    `json:"country_code"`
	Phone       string    `json:"phone"`
	VerifiedAt  time.Time `json:"verified_at"`
}

// Publisher emits events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards events.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
