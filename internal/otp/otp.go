// Package otp defines the phone verification capability the waitlist flow
// depends on, and the result events providers publish.
package otp

import (
	"context"
	"net/http"
	"strings"
)

// Channel names the delivery channel an OTP is sent over.
type Channel string

const ChannelPhone Channel = "PHONE"

// InitiateParams asks a provider to send a code.
type InitiateParams struct {
	Session     string
	Channel     Channel
	Phone       string
	CountryCode string
}

// VerifyParams asks a provider to check a code. The outcome is published on
// the provider's result channel, tagged with Session and Attempt.
type VerifyParams struct {
	Session     string
	Attempt     int64
	Channel     Channel
	Phone       string
	OTP         string
	CountryCode string
}

// Result is an out-of-band verification outcome.
type Result struct {
	Session    string         `json:"session"`
	Attempt    int64          `json:"attempt"`
	StatusCode int            `json:"statusCode"`
	Success    bool           `json:"success"`
	Response   map[string]any `json:"response,omitempty"`
}

// Verified reports whether the result proves ownership of the phone number.
func (r Result) Verified() bool {
	return r.Success && r.StatusCode == http.StatusOK
}

// Message returns the provider supplied failure message, if any.
func (r Result) Message() string {
	if r.Response == nil {
		return ""
	}
	if msg, ok := r.Response["message"].(string); ok {
		return strings.TrimSpace(msg)
	}
	return ""
}

// Provider is the external authentication capability.
//
// Initiate and Verify return an error only when the request could not be
// handed to the provider. Verify never reports the outcome directly; it is
// delivered later on the Results channel the provider was constructed with.
type Provider interface {
	Initiate(ctx context.Context, params InitiateParams) error
	Verify(ctx context.Context, params VerifyParams) error
}

// NewResults allocates the channel providers publish results on.
func NewResults(buffer int) chan Result {
	if buffer < 0 {
		buffer = 0
	}
	return make(chan Result, buffer)
}

// Deliver sends r on results unless ctx ends first.
func Deliver(ctx context.Context, results chan<- Result, r Result) bool {
	select {
	case results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
