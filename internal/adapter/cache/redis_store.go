package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/heysouravv/social-hour/internal/domain"
	"github.com/heysouravv/social-hour/internal/repository"
)

const (
	sessionKeyPrefix   = "waitlist:session:"
	challengeKeyPrefix = "otp:challenge:"
)

// RedisSessionStore implements SessionStore backed by Redis.
type RedisSessionStore struct {
	client redis.UniversalClient
}

var _ repository.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore constructs a Redis-backed session store.
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// Save stores the encoded session with TTL.
func (s *RedisSessionStore) Save(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	return setJSON(ctx, s.client, sessionKeyPrefix+session.ID, session, ttl)
}

// Get loads and decodes the session.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	found, err := getJSON(ctx, s.client, sessionKeyPrefix+id, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

// Delete removes the session key.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return del(ctx, s.client, sessionKeyPrefix+id)
}

// RedisChallengeStore implements ChallengeStore backed by Redis.
type RedisChallengeStore struct {
	client redis.UniversalClient
}

var _ repository.ChallengeStore = (*RedisChallengeStore)(nil)

// NewRedisChallengeStore constructs a Redis-backed challenge store.
func NewRedisChallengeStore(client redis.UniversalClient) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func (s *RedisChallengeStore) Put(ctx context.Context, challenge *domain.OTPChallenge, ttl time.Duration) error {
	return setJSON(ctx, s.client, challengeKeyPrefix+challenge.Session, challenge, ttl)
}

func (s *RedisChallengeStore) Get(ctx context.Context, session string) (*domain.OTPChallenge, error) {
	var challenge domain.OTPChallenge
	found, err := getJSON(ctx, s.client, challengeKeyPrefix+session, &challenge)
	if err != nil || !found {
		return nil, err
	}
	return &challenge, nil
}

func (s *RedisChallengeStore) Delete(ctx context.Context, session string) error {
	return del(ctx, s.client, challengeKeyPrefix+session)
}

func setJSON(ctx context.Context, client redis.UniversalClient, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func getJSON(ctx context.Context, client redis.UniversalClient, key string, dst any) (bool, error) {
	bytes, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(bytes, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func del(ctx context.Context, client redis.UniversalClient, key string) error {
	if err := client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
