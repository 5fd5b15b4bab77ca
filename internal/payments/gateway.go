package payments

import "context"

// SessionVerifier looks up a payment session. A definitive answer (paid,
// unpaid, invalid) is returned as a Session; errors wrap ErrTransient and mean
// the provider could not be asked.
type SessionVerifier interface {
	VerifySession(ctx context.Context, sessionID string) (*Session, error)
}
