package otpless

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heysouravv/social-hour/internal/otp"
)

type fakeOTPless struct {
	t        *testing.T
	verified bool
	status   int
	message  string
	initBody map[string]any
}

func (f *fakeOTPless) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(initiatePath, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(f.t, http.MethodPost, r.Method)
		require.Equal(f.t, "client-id", r.Header.Get("clientId"))
		require.Equal(f.t, "client-secret", r.Header.Get("clientSecret"))
		require.Equal(f.t, "APP", r.Header.Get("appId"))
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.initBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"requestId": "req-1"})
	})
	mux.HandleFunc(verifyPath, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(f.t, "req-1", body["requestId"])
		status := f.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"requestId":     "req-1",
			"isOTPVerified": f.verified,
			"message":       f.message,
		})
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server) (*Client, chan otp.Result) {
	t.Helper()
	results := otp.NewResults(1)
	client := NewClient(Options{
		AppID:        "APP",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      srv.URL + "/",
		Logger:       zap.NewNop(),
	}, results)
	t.Cleanup(func() { _ = client.Close() })
	return client, results
}

func receive(t *testing.T, results <-chan otp.Result) otp.Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
		return otp.Result{}
	}
}

func TestInitiateAndVerifySuccess(t *testing.T) {
	fake := &fakeOTPless{t: t, verified: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	client, results := newTestClient(t, srv)
	ctx := context.Background()

	err := client.Initiate(ctx, otp.InitiateParams{Session: "s1", Channel: otp.ChannelPhone, Phone: "9876543210", CountryCode: "+91"})
	require.NoError(t, err)
	require.Equal(t, "919876543210", fake.initBody["phoneNumber"])
	require.Equal(t, []any{"SMS"}, fake.initBody["channels"])
	require.EqualValues(t, 6, fake.initBody["otpLength"])

	err = client.Verify(ctx, otp.VerifyParams{Session: "s1", Attempt: 3, Channel: otp.ChannelPhone, Phone: "9876543210", OTP: "123456", CountryCode: "+91"})
	require.NoError(t, err)

	r := receive(t, results)
	require.True(t, r.Verified())
	require.Equal(t, "s1", r.Session)
	require.Equal(t, int64(3), r.Attempt)
	require.Equal(t, "9876543210", r.Response["phone"])
}

func TestVerifyFailurePublishesMessage(t *testing.T) {
	fake := &fakeOTPless{t: t, verified: false, status: http.StatusBadRequest, message: "Invalid OTP"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	client, results := newTestClient(t, srv)
	ctx := context.Background()

	require.NoError(t, client.Initiate(ctx, otp.InitiateParams{Session: "s1", Phone: "9876543210", CountryCode: "+91"}))
	require.NoError(t, client.Verify(ctx, otp.VerifyParams{Session: "s1", Attempt: 1, OTP: "000000"}))

	r := receive(t, results)
	require.False(t, r.Verified())
	require.Equal(t, http.StatusBadRequest, r.StatusCode)
	require.Equal(t, "Invalid OTP", r.Message())
}

func TestVerifyWithoutInitiateFails(t *testing.T) {
	fake := &fakeOTPless{t: t}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	client, _ := newTestClient(t, srv)

	err := client.Verify(context.Background(), otp.VerifyParams{Session: "unknown", OTP: "123456"})
	require.Error(t, err)
}

func TestInitiateRejectedByProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid credentials"}`))
	}))
	defer srv.Close()
	client, _ := newTestClient(t, srv)

	err := client.Initiate(context.Background(), otp.InitiateParams{Session: "s1", Phone: "9876543210", CountryCode: "+91"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=401")
}

func TestInitiateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	results := otp.NewResults(1)
	client := NewClient(Options{BaseURL: srv.URL}, results)
	defer client.Close()

	err := client.Initiate(context.Background(), otp.InitiateParams{Session: "s1", Phone: "9876543210", CountryCode: "+91"})
	require.Error(t, err)
}

func TestPendingRequestsExpire(t *testing.T) {
	fake := &fakeOTPless{t: t, verified: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	client, _ := newTestClient(t, srv)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	require.NoError(t, client.Initiate(ctx, otp.InitiateParams{Session: "abandoned", Phone: "9876543210", CountryCode: "+91"}))
	now = now.Add(client.expiry + time.Second)
	require.NoError(t, client.Initiate(ctx, otp.InitiateParams{Session: "fresh", Phone: "9876543211", CountryCode: "+91"}))

	client.mu.Lock()
	_, abandoned := client.requests["abandoned"]
	_, fresh := client.requests["fresh"]
	client.mu.Unlock()
	require.False(t, abandoned)
	require.True(t, fresh)

	err := client.Verify(ctx, otp.VerifyParams{Session: "abandoned", OTP: "123456"})
	require.Error(t, err)
}

func TestStringValue(t *testing.T) {
	require.Equal(t, "abc", stringValue("abc"))
	require.Equal(t, "42", stringValue(json.Number("42")))
	require.Empty(t, stringValue(42))
	require.Empty(t, stringValue(nil))
}
