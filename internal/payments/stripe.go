package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeVerifier reads Stripe Checkout sessions and their line items.
type StripeVerifier struct {
	getSession func(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	listItems  func(ctx context.Context, id string) ([]*stripe.LineItem, error)
}

func NewStripeVerifier(secretKey string) *StripeVerifier {
	sc := client.New(secretKey, nil)

	return &StripeVerifier{
		getSession: func(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
			params := &stripe.CheckoutSessionParams{}
			params.Context = ctx
			return sc.CheckoutSessions.Get(id, params)
		},
		listItems: func(ctx context.Context, id string) ([]*stripe.LineItem, error) {
			params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(id)}
			params.Context = ctx
			params.AddExpand("data.price.product")

			var out []*stripe.LineItem
			it := sc.CheckoutSessions.ListLineItems(params)
			for it.Next() {
				out = append(out, it.LineItem())
			}
			return out, it.Err()
		},
	}
}

func (v *StripeVerifier) VerifySession(ctx context.Context, sessionID string) (*Session, error) {
	cs, err := v.getSession(ctx, sessionID)
	if err != nil {
		if reason, ok := stripeRejected(err); ok {
			return &Session{ID: sessionID, Status: SessionInvalid, Reason: reason}, nil
		}
		return nil, transient(err)
	}

	s := sessionFromStripe(cs)
	if s.Status != SessionPaid {
		return s, nil
	}

	items, err := v.listItems(ctx, sessionID)
	if err != nil {
		return nil, transient(err)
	}
	s.Items, err = lineItemsFromStripe(items)
	if err != nil {
		return &Session{ID: sessionID, Status: SessionInvalid, Reason: err.Error()}, nil
	}
	return s, nil
}

func sessionFromStripe(cs *stripe.CheckoutSession) *Session {
	s := &Session{
		ID:               cs.ID,
		AmountTotalCents: cs.AmountTotal,
		Currency:         string(cs.Currency),
		CustomerRef:      cs.ClientReferenceID,
	}
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		email := cs.CustomerDetails.Email
		s.CustomerEmail = &email
	}

	switch {
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		s.Status = SessionPaid
	case cs.Status == stripe.CheckoutSessionStatusExpired:
		s.Status = SessionInvalid
		s.Reason = "session expired"
	default:
		s.Status = SessionUnpaid
		s.Reason = fmt.Sprintf("payment status %s", cs.PaymentStatus)
	}
	return s
}

// lineItemsFromStripe prefers a product_id set in product metadata, falling
// back to the Stripe product id. Lines for the same product at the same unit
// price are summed; a product sold at two prices keeps one line per price.
func lineItemsFromStripe(items []*stripe.LineItem) ([]LineItem, error) {
	type lineKey struct {
		productID string
		unit      int64
	}
	var out []LineItem
	idx := map[lineKey]int{}

	for _, li := range items {
		if li == nil || li.Quantity <= 0 {
			continue
		}

		productID := ""
		var unit int64
		if li.Price != nil {
			unit = li.Price.UnitAmount
			if li.Price.Product != nil {
				productID = strings.TrimSpace(li.Price.Product.Metadata["product_id"])
				if productID == "" {
					productID = li.Price.Product.ID
				}
			}
		}
		if productID == "" {
			return nil, fmt.Errorf("line item %s has no product", li.ID)
		}
		if unit == 0 {
			unit = li.AmountTotal / li.Quantity
		}

		k := lineKey{productID: productID, unit: unit}
		if i, ok := idx[k]; ok {
			out[i].Quantity += int(li.Quantity)
			continue
		}
		idx[k] = len(out)
		out = append(out, LineItem{ProductID: productID, Quantity: int(li.Quantity), UnitPriceCents: unit})
	}
	return out, nil
}

// stripeRejected reports whether Stripe gave a definitive answer that the
// session cannot be used: unknown id or a malformed request for it.
// Auth failures, rate limits and 5xx stay transient.
func stripeRejected(err error) (string, bool) {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return "", false
	}
	if se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing {
		return "session not found", true
	}
	if se.Type == stripe.ErrorTypeInvalidRequest && se.HTTPStatusCode == http.StatusBadRequest {
		return "session rejected: " + se.Msg, true
	}
	return "", false
}
