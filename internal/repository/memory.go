package repository

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/heysouravv/social-hour/internal/domain"
)

var _ WaitlistRepository = (*MemoryWaitlistRepo)(nil)

// MemoryWaitlistRepo keeps confirmed signups in process memory. It is used
// when no DATABASE_URL is configured.
type MemoryWaitlistRepo struct {
	mu      sync.Mutex
	entries map[string]domain.WaitlistEntry
	node    *snowflake.Node
	now     func() time.Time
}

func NewMemoryWaitlistRepo(node *snowflake.Node) *MemoryWaitlistRepo {
	return &MemoryWaitlistRepo{
		entries: make(map[string]domain.WaitlistEntry),
		node:    node,
		now:     time.Now,
	}
}

func (r *MemoryWaitlistRepo) Upsert(_ context.Context, entry domain.WaitlistEntry) (domain.WaitlistEntry, error) {
	now := r.now().UTC()
	key := phoneKey(entry.CountryCode, entry.Phone)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	} else {
		if entry.ID == 0 {
			entry.ID = r.node.Generate().Int64()
		}
		entry.CreatedAt = now
	}
	if entry.VerifiedAt.IsZero() {
		entry.VerifiedAt = now
	}
	entry.UpdatedAt = now
	r.entries[key] = entry
	return entry, nil
}

func phoneKey(countryCode, phone string) string {
	return countryCode + ":" + phone
}
