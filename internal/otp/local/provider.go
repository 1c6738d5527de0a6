// Package local is a self-hosted otp.Provider. It generates codes, keeps
// only their argon2id hash in a ChallengeStore and sends them through a
// Sender such as SMS Local.
package local

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heysouravv/social-hour/internal/domain"
	"github.com/heysouravv/social-hour/internal/otp"
	"github.com/heysouravv/social-hour/internal/repository"
)

const (
	msgInvalidOTP      = "Invalid OTP"
	msgExpiredOTP      = "OTP expired. Please request a new one."
	msgTooManyAttempts = "Too many attempts. Please request a new OTP."
)

// Sender delivers a code to a phone number.
type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log. Development only.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a sender that logs instead of texting.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.L()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(_ context.Context, phone, code string) error {
	s.logger.Info("dev otp issued", zap.String("phone", phone), zap.String("otp", code))
	return nil
}

// Options tune code generation.
type Options struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	Logger      *zap.Logger
}

// Provider issues and checks codes without a hosted auth service.
type Provider struct {
	store       repository.ChallengeStore
	sender      Sender
	results     chan<- otp.Result
	digits      int
	ttl         time.Duration
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

var _ otp.Provider = (*Provider)(nil)

// NewProvider constructs the self-hosted provider.
func NewProvider(store repository.ChallengeStore, sender Sender, results chan<- otp.Result, opts Options) *Provider {
	if opts.Digits <= 0 {
		opts.Digits = 6
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		store:       store,
		sender:      sender,
		results:     results,
		digits:      opts.Digits,
		ttl:         opts.TTL,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Initiate replaces any previous challenge for the session and sends a new code.
func (p *Provider) Initiate(ctx context.Context, params otp.InitiateParams) error {
	code, err := generateCode(p.digits)
	if err != nil {
		return err
	}
	hash, err := hashCode(code)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}

	challenge := &domain.OTPChallenge{
		Session:     params.Session,
		Phone:       params.Phone,
		CountryCode: params.CountryCode,
		CodeHash:    hash,
		ExpiresAt:   p.now().UTC().Add(p.ttl),
	}
	if err := p.store.Put(ctx, challenge, p.ttl); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}

	dial := strings.TrimPrefix(params.CountryCode, "+") + params.Phone
	if err := p.sender.SendOTP(ctx, dial, code); err != nil {
		_ = p.store.Delete(ctx, params.Session)
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

// Verify checks the code against the stored challenge and publishes the outcome.
func (p *Provider) Verify(ctx context.Context, params otp.VerifyParams) error {
	challenge, err := p.store.Get(ctx, params.Session)
	if err != nil {
		return fmt.Errorf("load challenge: %w", err)
	}

	result := otp.Result{Session: params.Session, Attempt: params.Attempt}
	switch {
	case challenge == nil || challenge.Expired(p.now()):
		result.StatusCode = http.StatusGone
		result.Response = map[string]any{"message": msgExpiredOTP}
	case challenge.Attempts >= p.maxAttempts:
		result.StatusCode = http.StatusTooManyRequests
		result.Response = map[string]any{"message": msgTooManyAttempts}
	default:
		ok, err := verifyCode(params.OTP, challenge.CodeHash)
		if err != nil {
			return fmt.Errorf("verify code: %w", err)
		}
		if ok {
			if err := p.store.Delete(ctx, params.Session); err != nil {
				return fmt.Errorf("consume challenge: %w", err)
			}
			result.StatusCode = http.StatusOK
			result.Success = true
			result.Response = map[string]any{
				"phone":        challenge.Phone,
				"country_code": challenge.CountryCode,
				"channel":      string(params.Channel),
			}
			break
		}
		challenge.Attempts++
		remaining := challenge.ExpiresAt.Sub(p.now())
		if remaining < time.Second {
			remaining = time.Second
		}
		if err := p.store.Put(ctx, challenge, remaining); err != nil {
			return fmt.Errorf("store challenge: %w", err)
		}
		result.StatusCode = http.StatusUnauthorized
		result.Response = map[string]any{"message": msgInvalidOTP}
	}

	go func() {
		if !otp.Deliver(p.ctx, p.results, result) {
			p.logger.Warn("otp result dropped", zap.String("session_id", params.Session))
		}
	}()
	return nil
}

// Close stops delivering results.
func (p *Provider) Close() error {
	p.cancel()
	return nil
}
