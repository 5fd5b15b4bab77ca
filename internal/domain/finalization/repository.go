package finalization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tosho/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

const statusColumns = `session_id, state, purchase_ids, failure_reason, attempts,
       lease_token, lease_expires_at, created_at, updated_at, completed_at`

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{q: q}
}

func scanStatus(row pgx.Row) (*Status, error) {
	var s Status
	if err := row.Scan(
		&s.SessionID,
		&s.State,
		&s.PurchaseIDs,
		&s.FailureReason,
		&s.Attempts,
		&s.LeaseToken,
		&s.LeaseExpiresAt,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) Get(ctx context.Context, sessionID string) (*Status, error) {
	s, err := scanStatus(r.q.QueryRow(ctx, `
SELECT `+statusColumns+`
FROM finalizations
WHERE session_id = $1
`, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get finalization: %w", err)
	}
	return s, nil
}

func (r *Repository) CreateIfAbsent(ctx context.Context, sessionID string) (*Status, bool, error) {
	s, err := scanStatus(r.q.QueryRow(ctx, `
INSERT INTO finalizations (session_id, state)
VALUES ($1, 'pending')
ON CONFLICT (session_id) DO NOTHING
RETURNING `+statusColumns, sessionID))
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create finalization: %w", err)
	}

	// Someone else created it first.
	s, err = r.Get(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return s, false, nil
}

func (r *Repository) Acquire(ctx context.Context, sessionID, token string, ttl time.Duration) (*Status, bool, error) {
	s, err := scanStatus(r.q.QueryRow(ctx, `
UPDATE finalizations
SET state = 'pending',
    lease_token = $2,
    lease_expires_at = now() + make_interval(secs => $3),
    attempts = attempts + 1,
    failure_reason = NULL,
    updated_at = now()
WHERE session_id = $1
  AND (
        state = 'failed'
     OR (state = 'pending' AND (lease_token IS NULL OR lease_expires_at <= now()))
  )
RETURNING `+statusColumns, sessionID, token, ttl.Seconds()))
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("acquire finalization: %w", err)
	}

	s, err = r.Get(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return s, false, nil
}

func (r *Repository) Complete(ctx context.Context, sessionID, token string, purchaseIDs []string) (*Status, bool, error) {
	if purchaseIDs == nil {
		purchaseIDs = []string{}
	}
	return r.transition(ctx, `
UPDATE finalizations
SET state = 'completed',
    purchase_ids = $3,
    lease_token = NULL,
    lease_expires_at = NULL,
    completed_at = now(),
    updated_at = now()
WHERE session_id = $1
  AND state = 'pending'
  AND lease_token = $2
RETURNING `+statusColumns, sessionID, token, purchaseIDs)
}

func (r *Repository) Fail(ctx context.Context, sessionID, token, reason string) (*Status, bool, error) {
	return r.transition(ctx, `
UPDATE finalizations
SET state = 'failed',
    failure_reason = $3,
    lease_token = NULL,
    lease_expires_at = NULL,
    updated_at = now()
WHERE session_id = $1
  AND state = 'pending'
  AND lease_token = $2
RETURNING `+statusColumns, sessionID, token, reason)
}

func (r *Repository) transition(ctx context.Context, sql, sessionID string, args ...any) (*Status, bool, error) {
	s, err := scanStatus(r.q.QueryRow(ctx, sql, append([]any{sessionID}, args...)...))
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("transition finalization: %w", err)
	}

	s, err = r.Get(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return s, false, nil
}

func (r *Repository) Release(ctx context.Context, sessionID, token string) error {
	_, err := r.q.Exec(ctx, `
UPDATE finalizations
SET lease_token = NULL,
    lease_expires_at = NULL,
    updated_at = now()
WHERE session_id = $1
  AND state = 'pending'
  AND lease_token = $2
`, sessionID, token)
	if err != nil {
		return fmt.Errorf("release finalization: %w", err)
	}
	return nil
}

// ReleaseExpired clears leases left behind by attempts that never settled.
func (r *Repository) ReleaseExpired(ctx context.Context) (int64, error) {
	tag, err := r.q.Exec(ctx, `
UPDATE finalizations
SET lease_token = NULL,
    lease_expires_at = NULL,
    updated_at = now()
WHERE state = 'pending'
  AND lease_token IS NOT NULL
  AND lease_expires_at <= now()
`)
	if err != nil {
		return 0, fmt.Errorf("release expired finalizations: %w", err)
	}
	return tag.RowsAffected(), nil
}
