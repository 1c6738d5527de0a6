// Package flow implements the four step waitlist controller. It validates
// form input, moves a session between steps and hands phone verification to
// an injected otp.Provider. It never stores anything itself.
package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heysouravv/social-hour/internal/domain"
	"github.com/heysouravv/social-hour/internal/otp"
)

const (
	msgProfileRequired  = "Please enter both name and area"
	msgProviderNotReady = "Authentication service not ready. Please try again."
	msgSendFailed       = "Failed to send OTP. Please try again."
	msgVerifyFailed     = "Failed to verify OTP. Please try again."
	msgVerifyPending    = "Verification already in progress. Please wait."
	msgWrongStep        = "Please complete the current step first."
	msgRetryFallback    = "Please try again"
)

// Rules are the region specific input constraints.
type Rules struct {
	Channel     otp.Channel
	CountryCode string
	PhoneDigits int
	OTPDigits   int
}

// DefaultRules matches the single-region deployment: +91 numbers, 10 digit
// phones and 6 digit codes.
func DefaultRules() Rules {
	return Rules{
		Channel:     otp.ChannelPhone,
		CountryCode: "+91",
		PhoneDigits: 10,
		OTPDigits:   6,
	}
}

// ValidPhone reports whether phone is exactly PhoneDigits ASCII digits.
func (r Rules) ValidPhone(phone string) bool {
	return isDigits(phone, r.PhoneDigits)
}

// ValidOTP reports whether code is exactly OTPDigits ASCII digits.
func (r Rules) ValidOTP(code string) bool {
	return isDigits(code, r.OTPDigits)
}

func (r Rules) phoneMessage() string {
	return fmt.Sprintf("Please enter a valid %d-digit phone number", r.PhoneDigits)
}

func (r Rules) otpMessage() string {
	return fmt.Sprintf("Please enter a valid %d-digit OTP", r.OTPDigits)
}

// Controller drives sessions through the waitlist steps.
type Controller struct {
	provider otp.Provider
	rules    Rules
	logger   *zap.Logger
	now      func() time.Time
}

// NewController wires a controller. A nil provider is allowed; every action
// that needs it then fails with the "not ready" message.
func NewController(provider otp.Provider, rules Rules, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.L()
	}
	return &Controller{
		provider: provider,
		rules:    rules,
		logger:   logger,
		now:      time.Now,
	}
}

// Rules returns the input constraints the controller enforces.
func (c *Controller) Rules() Rules {
	return c.rules
}

// SubmitProfile handles COLLECT_PROFILE -> COLLECT_PHONE.
func (c *Controller) SubmitProfile(s *domain.Session, name, area string) bool {
	if !c.expect(s, domain.StepCollectProfile) {
		return false
	}
	s.Error = ""
	s.Draft.Name = strings.TrimSpace(name)
	s.Draft.Area = strings.TrimSpace(area)
	if s.Draft.Name == "" || s.Draft.Area == "" {
		s.Error = msgProfileRequired
		return false
	}
	c.advance(s, domain.StepCollectPhone)
	return true
}

// SubmitPhone handles COLLECT_PHONE -> COLLECT_OTP. The step only advances
// once the provider accepted the initiate request.
func (c *Controller) SubmitPhone(ctx context.Context, s *domain.Session, phone string) bool {
	if !c.expect(s, domain.StepCollectPhone) {
		return false
	}
	s.Error = ""
	s.Draft.PhoneNumber = phone
	if !c.initiate(ctx, s) {
		return false
	}
	s.Draft.OTP = ""
	c.advance(s, domain.StepCollectOTP)
	return true
}

// Resend asks the provider for a fresh code without leaving COLLECT_OTP.
func (c *Controller) Resend(ctx context.Context, s *domain.Session) bool {
	if !c.expect(s, domain.StepCollectOTP) {
		return false
	}
	if s.Pending {
		s.Error = msgVerifyPending
		return false
	}
	s.Error = ""
	return c.initiate(ctx, s)
}

// SubmitOTP starts a verify attempt. It never advances the step: the outcome
// arrives later and is applied with Apply.
func (c *Controller) SubmitOTP(ctx context.Context, s *domain.Session, code string) bool {
	if !c.expect(s, domain.StepCollectOTP) {
		return false
	}
	if s.Pending {
		s.Error = msgVerifyPending
		return false
	}
	s.Error = ""
	s.Draft.OTP = code
	if !c.rules.ValidOTP(code) {
		s.Error = c.rules.otpMessage()
		return false
	}
	if c.provider == nil {
		s.Error = msgProviderNotReady
		return false
	}

	s.Attempt++
	s.Pending = true
	err := c.provider.Verify(ctx, otp.VerifyParams{
		Session:     s.ID,
		Attempt:     s.Attempt,
		Channel:     c.rules.Channel,
		Phone:       s.Draft.PhoneNumber,
		OTP:         code,
		CountryCode: c.rules.CountryCode,
	})
	if err != nil {
		c.logger.Warn("otp verify request failed", zap.String("session_id", s.ID), zap.Error(err))
		s.Pending = false
		s.Error = msgVerifyFailed
		return false
	}
	return true
}

// Apply folds a verification result into the session. Results that do not
// belong to the session's pending attempt are ignored and false is returned.
// A result with success and status 200 is the only way to reach CONFIRMED.
func (c *Controller) Apply(s *domain.Session, r otp.Result) bool {
	if s.Step != domain.StepCollectOTP || !s.Pending || r.Attempt != s.Attempt {
		return false
	}
	s.Pending = false

	if r.Verified() {
		s.Verified = true
		s.UserInfo = r.Response
		s.Error = ""
		c.advance(s, domain.StepConfirmed)
		return true
	}

	msg := r.Message()
	if msg == "" {
		msg = msgRetryFallback
	}
	s.Error = "Verification failed: " + msg
	s.Draft.OTP = ""
	s.UpdatedAt = c.now().UTC()
	return true
}

// ChangeNumber returns from COLLECT_OTP to COLLECT_PHONE keeping the number.
// Any in-flight attempt is abandoned.
func (c *Controller) ChangeNumber(s *domain.Session) bool {
	if !c.expect(s, domain.StepCollectOTP) {
		return false
	}
	s.Pending = false
	s.Draft.OTP = ""
	s.Error = ""
	c.advance(s, domain.StepCollectPhone)
	return true
}

// Back returns from COLLECT_PHONE to COLLECT_PROFILE.
func (c *Controller) Back(s *domain.Session) bool {
	if !c.expect(s, domain.StepCollectPhone) {
		return false
	}
	s.Error = ""
	c.advance(s, domain.StepCollectProfile)
	return true
}

func (c *Controller) initiate(ctx context.Context, s *domain.Session) bool {
	if !c.rules.ValidPhone(s.Draft.PhoneNumber) {
		s.Error = c.rules.phoneMessage()
		return false
	}
	if c.provider == nil {
		s.Error = msgProviderNotReady
		return false
	}
	err := c.provider.Initiate(ctx, otp.InitiateParams{
		Session:     s.ID,
		Channel:     c.rules.Channel,
		Phone:       s.Draft.PhoneNumber,
		CountryCode: c.rules.CountryCode,
	})
	if err != nil {
		c.logger.Warn("otp initiate failed", zap.String("session_id", s.ID), zap.Error(err))
		s.Error = msgSendFailed
		return false
	}
	return true
}

func (c *Controller) expect(s *domain.Session, step domain.Step) bool {
	if s.Step == step {
		return true
	}
	s.Error = msgWrongStep
	return false
}

func (c *Controller) advance(s *domain.Session, step domain.Step) {
	s.Step = step
	s.UpdatedAt = c.now().UTC()
}

func isDigits(value string, n int) bool {
	if n <= 0 || len(value) != n {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}
