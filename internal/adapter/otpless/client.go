package otpless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heysouravv/social-hour/internal/otp"
)

const (
	initiatePath = "/auth/v1/initiate/otp"
	verifyPath   = "/auth/v1/verify/otp"
)

// Options configure the OTPless headless client.
type Options struct {
	AppID        string
	ClientID     string
	ClientSecret string
	BaseURL      string
	OTPLength    int
	Expiry       time.Duration
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Client talks to the hosted OTPless API and publishes verify outcomes on
// the results channel it was constructed with.
type Client struct {
	appID        string
	clientID     string
	clientSecret string
	baseURL      string
	otpLength    int
	expiry       time.Duration
	httpClient   *http.Client
	logger       *zap.Logger

	results chan<- otp.Result
	ctx     context.Context
	cancel  context.CancelFunc
	now     func() time.Time

	mu       sync.Mutex
	requests map[string]pendingRequest
}

// pendingRequest is the OTPless request awaiting a code for a session. It
// is dropped once the code would have expired upstream.
type pendingRequest struct {
	id        string
	expiresAt time.Time
}

var _ otp.Provider = (*Client)(nil)

// NewClient constructs the OTPless provider.
func NewClient(opts Options, results chan<- otp.Result) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://auth.otpless.app"
	}
	length := opts.OTPLength
	if length <= 0 {
		length = 6
	}
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		appID:        opts.AppID,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		baseURL:      baseURL,
		otpLength:    length,
		expiry:       expiry,
		httpClient:   httpClient,
		logger:       logger,
		results:      results,
		ctx:          ctx,
		cancel:       cancel,
		now:          time.Now,
		requests:     make(map[string]pendingRequest),
	}
}

// Initiate asks OTPless to send a code and remembers the request ID for the session.
func (c *Client) Initiate(ctx context.Context, params otp.InitiateParams) error {
	body := map[string]any{
		"phoneNumber": dialNumber(params.CountryCode, params.Phone),
		"channels":    []string{channelName(params.Channel)},
		"otpLength":   c.otpLength,
		"expiry":      int(c.expiry.Seconds()),
	}
	raw, status, err := c.post(ctx, initiatePath, body)
	if err != nil {
		return fmt.Errorf("initiate otp: %w", err)
	}
	if status >= 300 {
		return fmt.Errorf("initiate otp failed: status=%d message=%s", status, failureMessage(raw))
	}
	requestID := stringValue(raw["requestId"])
	if requestID == "" {
		return fmt.Errorf("initiate otp: response missing requestId")
	}

	c.mu.Lock()
	now := c.now()
	c.pruneLocked(now)
	c.requests[params.Session] = pendingRequest{id: requestID, expiresAt: now.Add(c.expiry)}
	c.mu.Unlock()
	return nil
}

// Verify submits the code. The outcome is published asynchronously.
func (c *Client) Verify(ctx context.Context, params otp.VerifyParams) error {
	c.mu.Lock()
	c.pruneLocked(c.now())
	requestID := c.requests[params.Session].id
	c.mu.Unlock()
	if requestID == "" {
		return fmt.Errorf("verify otp: no pending request for session")
	}

	raw, status, err := c.post(ctx, verifyPath, map[string]any{
		"requestId": requestID,
		"otp":       params.OTP,
	})
	if err != nil {
		return fmt.Errorf("verify otp: %w", err)
	}

	result := otp.Result{
		Session:    params.Session,
		Attempt:    params.Attempt,
		StatusCode: status,
		Success:    status == http.StatusOK && boolValue(raw["isOTPVerified"]),
	}
	if result.Success {
		result.Response = map[string]any{
			"phone":        params.Phone,
			"country_code": params.CountryCode,
			"channel":      string(params.Channel),
			"request_id":   requestID,
		}
		c.mu.Lock()
		delete(c.requests, params.Session)
		c.mu.Unlock()
	} else if msg := failureMessage(raw); msg != "" {
		result.Response = map[string]any{"message": msg}
	}

	go func() {
		if !otp.Deliver(c.ctx, c.results, result) {
			c.logger.Warn("otpless result dropped", zap.String("session_id", params.Session))
		}
	}()
	return nil
}

// Close stops delivering results.
func (c *Client) Close() error {
	c.cancel()
	return nil
}

func (c *Client) pruneLocked(now time.Time) {
	for session, req := range c.requests {
		if now.After(req.expiresAt) {
			delete(c.requests, session)
		}
	}
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) (map[string]any, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("clientId", c.clientID)
	req.Header.Set("clientSecret", c.clientSecret)
	if c.appID != "" {
		req.Header.Set("appId", c.appID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	raw := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil && resp.StatusCode < 300 {
			return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return raw, resp.StatusCode, nil
}

func dialNumber(countryCode, phone string) string {
	return strings.TrimPrefix(strings.TrimSpace(countryCode), "+") + phone
}

func channelName(ch otp.Channel) string {
	if ch == otp.ChannelPhone {
		return "SMS"
	}
	return string(ch)
}

func failureMessage(raw map[string]any) string {
	return stringValue(coalesce(raw["message"], raw["description"], raw["errorMessage"]))
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func boolValue(input any) bool {
	switch v := input.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

func coalesce(values ...any) any {
	for _, v := range values {
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return v
			}
		case nil:
			continue
		default:
			return v
		}
	}
	return nil
}
