package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSMSLocalClientDefaults(t *testing.T) {
	client := NewSMSLocalClient("api-key", "", "")
	require.Equal(t, defaultBaseURL, client.BaseURL)
	require.NotNil(t, client.HTTPClient)
	require.Equal(t, defaultTimeout, client.HTTPClient.Timeout)
}

func TestSendOTPSuccess(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "test-api-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	client := NewSMSLocalClient("test-api-key", server.URL, "SOCIAL")
	require.NoError(t, client.SendOTP(context.Background(), "919876543210", "123456"))
	require.Equal(t, "otp", body["route"])
	require.Equal(t, "919876543210", body["numbers"])
	require.Equal(t, "123456", body["variables"])
	require.Equal(t, "SOCIAL", body["sender_id"])
}

func TestSendOTPMissingAPIKey(t *testing.T) {
	client := NewSMSLocalClient("", "", "")
	err := client.SendOTP(context.Background(), "919876543210", "123456")
	require.ErrorContains(t, err, "API key not configured")
}

func TestSendOTPNon200Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid request"}`))
	}))
	defer server.Close()

	client := NewSMSLocalClient("api-key", server.URL, "")
	err := client.SendOTP(context.Background(), "919876543210", "123456")
	require.ErrorContains(t, err, "status=400")
	require.ErrorContains(t, err, "invalid request")
}

func TestSendOTPCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewSMSLocalClient("api-key", server.URL, "")
	require.Error(t, client.SendOTP(ctx, "919876543210", "123456"))
}
