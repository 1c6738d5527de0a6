package domain

import "errors"

// ErrSessionNotFound signals a missing or expired waitlist session.
var ErrSessionNotFound = errors.New("waitlist: session not found")
