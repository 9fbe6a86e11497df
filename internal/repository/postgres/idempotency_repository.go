package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StoredResponse is a replayable HTTP response recorded under an Idempotency-Key.
type StoredResponse struct {
	Key       string
	Status    int
	Body      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IdempotencyRepository persists payment responses so retried submissions replay instead of charging twice.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

func NewIdempotencyRepository(pool *pgxpool.Pool, ttl time.Duration) *IdempotencyRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyRepository{pool: pool, ttl: ttl, now: time.Now}
}

func (r *IdempotencyRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Get returns the unexpired response for key, or nil if there is none.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*StoredResponse, error) {
	s := &StoredResponse{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT key, response_status, response_body, created_at, expires_at
		 FROM idempotency_keys WHERE key = $1 AND expires_at > NOW()`, key,
	).Scan(&s.Key, &s.Status, &s.Body, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	return s, nil
}

// Save records the response for key. A live entry already stored under key wins.
func (r *IdempotencyRepository) Save(ctx context.Context, key string, status int, body string) error {
	now := r.now()
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO idempotency_keys (key, response_status, response_body, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE
		   SET response_status = EXCLUDED.response_status,
		       response_body = EXCLUDED.response_body,
		       created_at = EXCLUDED.created_at,
		       expires_at = EXCLUDED.expires_at
		 WHERE idempotency_keys.expires_at <= NOW()`,
		key, status, body, now, now.Add(r.ttl),
	)
	if err != nil {
		return fmt.Errorf("save idempotency key: %w", err)
	}
	return nil
}

// Cleanup deletes expired entries and returns how many were removed.
func (r *IdempotencyRepository) Cleanup(ctx context.Context) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
