package otp_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/heysouravv/social-hour/internal/otp"
)

func TestResultVerified(t *testing.T) {
	require.True(t, otp.Result{StatusCode: 200, Success: true}.Verified())
	require.False(t, otp.Result{StatusCode: 200, Success: false}.Verified())
	require.False(t, otp.Result{StatusCode: 201, Success: true}.Verified())
}

func TestResultMessage(t *testing.T) {
	require.Equal(t, "", otp.Result{}.Message())
	require.Equal(t, "Invalid OTP", otp.Result{Response: map[string]any{"message": " Invalid OTP "}}.Message())
	require.Equal(t, "", otp.Result{Response: map[string]any{"message": 42}}.Message())
}

func TestDeliver(t *testing.T) {
	results := otp.NewResults(1)
	require.True(t, otp.Deliver(context.Background(), results, otp.Result{Session: "a"}))
	require.Equal(t, "a", (<-results).Session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := otp.NewResults(0)
	require.False(t, otp.Deliver(ctx, blocked, otp.Result{Session: "b"}))
}
