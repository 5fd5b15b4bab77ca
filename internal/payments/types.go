package payments

import (
	"errors"
	"fmt"
)

var ErrTransient = errors.New("payment provider unavailable")

type SessionStatus string

const (
	SessionPaid    SessionStatus = "paid"
	SessionUnpaid  SessionStatus = "unpaid"
	SessionInvalid SessionStatus = "invalid"
)

type LineItem struct {
	ProductID      string
	Quantity       int
	UnitPriceCents int64
}

// Session is the provider's view of a checkout session.
type Session struct {
	ID               string
	Status           SessionStatus
	Reason           string
	Items            []LineItem
	AmountTotalCents int64
	Currency         string
	CustomerRef      string
	CustomerEmail    *string
}

func transient(err error) error {
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
