package checkout

import (
	"context"
	"time"

	"tosho/internal/domain/purchases"
)

type Outcome string

const (
	OutcomeNothing   Outcome = "nothing"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeRetry     Outcome = "retry"
)

// Result is what a finalize call reports back to the client. Err carries the
// taxonomy error behind a failed or retry outcome.
type Result struct {
	Outcome         Outcome                    `json:"state"`
	SessionID       string                     `json:"session_id,omitempty"`
	PurchaseIDs     []string                   `json:"purchase_ids,omitempty"`
	Records         []purchases.PurchaseRecord `json:"records,omitempty"`
	Reason          string                     `json:"message,omitempty"`
	ClearCartCookie bool                       `json:"-"`
	Idempotent      bool                       `json:"idempotent"`
	Err             error                      `json:"-"`
}

// CartClearer empties the server cart of a user.
type CartClearer interface {
	ClearUser(ctx context.Context, userID string) error
}

type Config struct {
	LeaseTTL     time.Duration
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	return c
}

// View is the checkout-completion page state for a session.
type View string

const (
	ViewProcessing View = "processing"
	ViewSuccess    View = "success"
	ViewError      View = "error"
)

type StatusView struct {
	SessionID   string   `json:"session_id"`
	View        View     `json:"view"`
	PurchaseIDs []string `json:"purchase_ids,omitempty"`
	Message     string   `json:"message,omitempty"`
	Attempts    int      `json:"attempts"`
	// Stalled is set while processing when the last attempt's lease ran out
	// without settling. The next finalize call or the sweeper picks it up.
	Stalled bool `json:"stalled,omitempty"`
}
