package purchases

import (
	"context"
	"errors"
	"time"
)

var (
	ErrLedgerConflict = errors.New("purchases already recorded for session")
	ErrEmptyBatch     = errors.New("purchase batch has no session id")
)

const EventPurchaseCompleted = "purchase.completed"

// PurchaseRecord is immutable once written.
type PurchaseRecord struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	ProductID      string    `json:"product_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

// Batch is every record of one finalized payment session.
type Batch struct {
	SessionID        string
	UserID           string
	CustomerEmail    *string
	AmountTotalCents int64
	Currency         string
	Records          []PurchaseRecord
}

// CompletedEvent is the outbox payload written with each batch.
type CompletedEvent struct {
	SessionID        string           `json:"session_id"`
	UserID           string           `json:"user_id,omitempty"`
	CustomerEmail    *string          `json:"customer_email,omitempty"`
	AmountTotalCents int64            `json:"amount_total_cents"`
	Currency         string           `json:"currency"`
	Records          []PurchaseRecord `json:"records"`
	CompletedAt      time.Time        `json:"completed_at"`
}

type Store interface {
	// AppendBatch writes all records or none. A second batch for the same
	// session is rejected with ErrLedgerConflict.
	AppendBatch(ctx context.Context, b *Batch) error
	ListBySession(ctx context.Context, sessionID string) ([]PurchaseRecord, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]PurchaseRecord, int, error)
}
