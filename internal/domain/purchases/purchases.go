package purchases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tosho/internal/infra/dbx"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the append-only purchase ledger.
type Repository struct {
	db dbx.Beginner
}

func NewRepository(db dbx.Beginner) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AppendBatch(ctx context.Context, b *Batch) error {
	if b == nil || b.SessionID == "" {
		return ErrEmptyBatch
	}

	return dbx.WithTx(ctx, r.db, func(q dbx.Querier) error {
		// The batch row is the per-session guard: its primary key makes a
		// second batch for the same session fail before any record is written.
		_, err := q.Exec(ctx, `
INSERT INTO purchase_batches (session_id, user_id, customer_email, amount_total_cents, currency)
VALUES ($1, $2, $3, $4, $5)
`, b.SessionID, b.UserID, b.CustomerEmail, b.AmountTotalCents, b.Currency)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == dbx.UniqueViolation {
				return ErrLedgerConflict
			}
			return fmt.Errorf("insert purchase batch: %w", err)
		}

		for _, rec := range b.Records {
			if _, err := q.Exec(ctx, `
INSERT INTO purchases (id, session_id, user_id, product_id, quantity, unit_price_cents, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, rec.ID, b.SessionID, rec.UserID, rec.ProductID, rec.Quantity, rec.UnitPriceCents, rec.CreatedAt); err != nil {
				return fmt.Errorf("insert purchase %s: %w", rec.ProductID, err)
			}
		}

		payload, err := json.Marshal(CompletedEvent{
			SessionID:        b.SessionID,
			UserID:           b.UserID,
			CustomerEmail:    b.CustomerEmail,
			AmountTotalCents: b.AmountTotalCents,
			Currency:         b.Currency,
			Records:          b.Records,
			CompletedAt:      time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal purchase event: %w", err)
		}

		if _, err := q.Exec(ctx, `
INSERT INTO outbox_events (aggregate_id, event_type, payload)
VALUES ($1, $2, $3)
`, b.SessionID, EventPurchaseCompleted, payload); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}

		return nil
	})
}

func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]PurchaseRecord, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, session_id, user_id, product_id, quantity, unit_price_cents, created_at
FROM purchases
WHERE session_id = $1
ORDER BY created_at ASC, id ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list purchases by session: %w", err)
	}
	defer rows.Close()

	var out []PurchaseRecord
	for rows.Next() {
		var p PurchaseRecord
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.ProductID, &p.Quantity, &p.UnitPriceCents, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("purchases rows error: %w", err)
	}
	return out, nil
}

// ListByUser returns the user's purchases newest first, with the total count for pagination.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]PurchaseRecord, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
SELECT id, session_id, user_id, product_id, quantity, unit_price_cents, created_at,
       COUNT(*) OVER() AS total_count
FROM purchases
WHERE user_id = $1
ORDER BY created_at DESC, id ASC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list purchases by user: %w", err)
	}
	defer rows.Close()

	var (
		out   []PurchaseRecord
		total int
	)
	for rows.Next() {
		var p PurchaseRecord
		var t int
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.ProductID, &p.Quantity, &p.UnitPriceCents, &p.CreatedAt, &t); err != nil {
			return nil, 0, fmt.Errorf("scan purchase: %w", err)
		}
		if total == 0 {
			total = t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("purchases rows error: %w", err)
	}
	return out, total, nil
}
