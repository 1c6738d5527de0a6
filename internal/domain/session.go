package domain

import "time"

// Step identifies which screen of the waitlist flow a session is on.
type Step int

const (
	StepCollectProfile Step = iota + 1
	StepCollectPhone
	StepCollectOTP
	StepConfirmed
)

func (s Step) String() string {
	switch s {
	case StepCollectProfile:
		return "COLLECT_PROFILE"
	case StepCollectPhone:
		return "COLLECT_PHONE"
	case StepCollectOTP:
		return "COLLECT_OTP"
	case StepConfirmed:
		return "CONFIRMED"
	default:
		return "UNKNOWN"
	}
}

// SignupDraft holds the values typed into the waitlist form.
type SignupDraft struct {
	Name        string `json:"name"`
	Area        string `json:"area"`
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp,omitempty"`
}

// Session is the ephemeral per-visitor state of the waitlist flow.
type Session struct {
	ID       string         `json:"id"`
	Step     Step           `json:"step"`
	Draft    SignupDraft    `json:"draft"`
	Verified bool           `json:"verified"`
	UserInfo map[string]any `json:"user_info,omitempty"`
	Error    string         `json:"error,omitempty"`

	// Pending is set while a verify attempt is in flight; Attempt numbers
	// that attempt so late results for an abandoned one can be told apart.
	Pending bool  `json:"pending"`
	Attempt int64 `json:"attempt"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns an empty session positioned at the first step.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Step:      StepCollectProfile,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
