package finalization

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("finalization status not found")

type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status is the idempotency record for one payment session.
type Status struct {
	SessionID      string     `json:"session_id"`
	State          State      `json:"state"`
	PurchaseIDs    []string   `json:"purchase_ids"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	Attempts       int        `json:"attempts"`
	LeaseToken     *string    `json:"-"`
	LeaseExpiresAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Held reports whether an in-flight attempt owns the status at now.
func (s *Status) Held(now time.Time) bool {
	return s.State == StatePending &&
		s.LeaseToken != nil &&
		s.LeaseExpiresAt != nil &&
		s.LeaseExpiresAt.After(now)
}

type Store interface {
	Get(ctx context.Context, sessionID string) (*Status, error)
	// CreateIfAbsent inserts a pending status atomically and reports whether it was created.
	CreateIfAbsent(ctx context.Context, sessionID string) (*Status, bool, error)
	// Acquire takes the attempt lease when the status is failed or pending
	// without a live lease. It reports false and the current status otherwise.
	Acquire(ctx context.Context, sessionID, token string, ttl time.Duration) (*Status, bool, error)
	// Complete and Fail only move pending -> terminal for the lease holder.
	// Any other transition is a no-op returning the existing status.
	Complete(ctx context.Context, sessionID, token string, purchaseIDs []string) (*Status, bool, error)
	Fail(ctx context.Context, sessionID, token, reason string) (*Status, bool, error)
	// Release drops the lease and leaves the status pending, eligible for retry.
	Release(ctx context.Context, sessionID, token string) error
	ReleaseExpired(ctx context.Context) (int64, error)
}
