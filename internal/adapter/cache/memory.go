package cache

import (
	"context"
	"sync"
	"time"

	"github.com/heysouravv/social-hour/internal/domain"
	"github.com/heysouravv/social-hour/internal/repository"
)

type memoryItem[T any] struct {
	value     T
	expiresAt time.Time
}

type memoryMap[T any] struct {
	mu   sync.RWMutex
	m    map[string]memoryItem[T]
	nowF func() time.Time
}

func newMemoryMap[T any]() *memoryMap[T] {
	return &memoryMap[T]{m: make(map[string]memoryItem[T]), nowF: time.Now}
}

func (mm *memoryMap[T]) put(key string, value T, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = mm.nowF().Add(ttl)
	}
	mm.mu.Lock()
	mm.m[key] = memoryItem[T]{value: value, expiresAt: expiresAt}
	mm.mu.Unlock()
}

func (mm *memoryMap[T]) get(key string) (T, bool) {
	mm.mu.RLock()
	item, ok := mm.m[key]
	mm.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	if !item.expiresAt.IsZero() && !item.expiresAt.After(mm.nowF()) {
		mm.delete(key)
		var zero T
		return zero, false
	}
	return item.value, true
}

func (mm *memoryMap[T]) delete(key string) {
	mm.mu.Lock()
	delete(mm.m, key)
	mm.mu.Unlock()
}

// MemorySessionStore keeps sessions in process memory. Sessions are copied
// on the way in and out so callers never share state.
type MemorySessionStore struct {
	items *memoryMap[domain.Session]
}

var _ repository.SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{items: newMemoryMap[domain.Session]()}
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	session, ok := s.items.get(id)
	if !ok {
		return nil, nil
	}
	return cloneSession(session), nil
}

func (s *MemorySessionStore) Save(_ context.Context, session *domain.Session, ttl time.Duration) error {
	s.items.put(session.ID, *cloneSession(*session), ttl)
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.items.delete(id)
	return nil
}

// MemoryChallengeStore keeps OTP challenges in process memory.
type MemoryChallengeStore struct {
	items *memoryMap[domain.OTPChallenge]
}

var _ repository.ChallengeStore = (*MemoryChallengeStore)(nil)

func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{items: newMemoryMap[domain.OTPChallenge]()}
}

func (s *MemoryChallengeStore) Put(_ context.Context, challenge *domain.OTPChallenge, ttl time.Duration) error {
	s.items.put(challenge.Session, *challenge, ttl)
	return nil
}

func (s *MemoryChallengeStore) Get(_ context.Context, session string) (*domain.OTPChallenge, error) {
	challenge, ok := s.items.get(session)
	if !ok {
		return nil, nil
	}
	return &challenge, nil
}

func (s *MemoryChallengeStore) Delete(_ context.Context, session string) error {
	s.items.delete(session)
	return nil
}

func cloneSession(s domain.Session) *domain.Session {
	if s.UserInfo != nil {
		info := make(map[string]any, len(s.UserInfo))
		for k, v := range s.UserInfo {
			info[k] = v
		}
		s.UserInfo = info
	}
	return &s
}
