package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heysouravv/social-hour/internal/domain"
)

var _ WaitlistRepository = (*PostgresWaitlistRepo)(nil)

// PostgresWaitlistRepo implements WaitlistRepository.
type PostgresWaitlistRepo struct {
	db   *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresWaitlistRepo(pool *pgxpool.Pool, node *snowflake.Node) *PostgresWaitlistRepo {
	return &PostgresWaitlistRepo{db: pool, node: node}
}

const entryColumns = `id, name, area, country_code, phone, user_info, verified_at, created_at, updated_at`

const upsertEntrySQL = `INSERT INTO waitlist_entries (id, name, area, country_code, phone, user_info, verified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (country_code, phone) DO UPDATE SET
	name = EXCLUDED.name,
	area = EXCLUDED.area,
	user_info = EXCLUDED.user_info,
	verified_at = EXCLUDED.verified_at,
	updated_at = NOW()
RETURNING ` + entryColumns

// Upsert records a confirmed signup. A repeat confirmation for the same
// number refreshes name, area and provider data but keeps the original ID.
func (r *PostgresWaitlistRepo) Upsert(ctx context.Context, entry domain.WaitlistEntry) (domain.WaitlistEntry, error) {
	info, err := marshalUserInfo(entry.UserInfo)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	if entry.ID == 0 {
		entry.ID = r.node.Generate().Int64()
	}
	if entry.VerifiedAt.IsZero() {
		entry.VerifiedAt = time.Now().UTC()
	}

	row := r.db.QueryRow(ctx, upsertEntrySQL,
		entry.ID,
		entry.Name,
		entry.Area,
		entry.CountryCode,
		entry.Phone,
		info,
		entry.VerifiedAt,
	)
	saved, err := scanEntry(row)
	if err != nil {
		return domain.WaitlistEntry{}, fmt.Errorf("upsert waitlist entry: %w", err)
	}
	return saved, nil
}

func scanEntry(row pgx.Row) (domain.WaitlistEntry, error) {
	var (
		entry domain.WaitlistEntry
		info  []byte
	)
	if err := row.Scan(
		&entry.ID,
		&entry.Name,
		&entry.Area,
		&entry.CountryCode,
		&entry.Phone,
		&info,
		&entry.VerifiedAt,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return domain.WaitlistEntry{}, err
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &entry.UserInfo); err != nil {
			return domain.WaitlistEntry{}, fmt.Errorf("decode user_info: %w", err)
		}
	}
	return entry, nil
}

func marshalUserInfo(info map[string]any) ([]byte, error) {
	if info == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode user_info: %w", err)
	}
	return raw, nil
}
