package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/heysouravv/social-hour/internal/domain"
)

func TestMemorySessionStoreRoundTrip(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	s := domain.NewSession("s1", time.Now())
	s.Draft.Name = "Asha"
	s.UserInfo = map[string]any{"phone": "9876543210"}
	require.NoError(t, store.Save(ctx, s, time.Minute))

	s.Draft.Name = "changed after save"
	s.UserInfo["phone"] = "0000000000"

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "Asha", got.Draft.Name)
	require.Equal(t, "9876543210", got.UserInfo["phone"])

	require.NoError(t, store.Delete(ctx, "s1"))
	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	store := NewMemorySessionStore()
	now := time.Now()
	store.items.nowF = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewSession("s1", now), time.Minute))
	now = now.Add(2 * time.Minute)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemoryChallengeStore(t *testing.T) {
	store := NewMemoryChallengeStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &domain.OTPChallenge{Session: "s1", CodeHash: "h"}, time.Minute))
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "h", got.CodeHash)

	got.Attempts = 3
	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Zero(t, again.Attempts)

	require.NoError(t, store.Delete(ctx, "s1"))
	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got)
}
