package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tosho/internal/infra/dbx"
)

type Event struct {
	ID          int64           `json:"id"`
	AggregateID string          `json:"aggregate_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Store interface {
	GetUnprocessed(ctx context.Context, limit int) ([]*Event, error)
	MarkProcessed(ctx context.Context, id int64) error
}

// OutboxRepository reads the outbox rows written alongside purchase batches.
type OutboxRepository struct {
	q dbx.Querier
}

func NewOutboxRepository(q dbx.Querier) *OutboxRepository {
	return &OutboxRepository{q: q}
}

func (r *OutboxRepository) GetUnprocessed(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.q.Query(ctx, `
SELECT id, aggregate_id, event_type, payload, created_at
FROM outbox_events
WHERE processed_at IS NULL
ORDER BY id ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox rows error: %w", err)
	}
	return out, nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `
UPDATE outbox_events
SET processed_at = now()
WHERE id = $1
`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %d: %w", id, err)
	}
	return nil
}
