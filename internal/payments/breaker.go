package payments

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerVerifier bounds each lookup with a timeout and stops calling the
// provider while it keeps failing. Definitive answers never trip the breaker.
type BreakerVerifier struct {
	next    SessionVerifier
	cb      *gobreaker.CircuitBreaker[*Session]
	timeout time.Duration
}

func NewBreakerVerifier(next SessionVerifier, timeout time.Duration, logger *zap.SugaredLogger) *BreakerVerifier {
	st := gobreaker.Settings{
		Name:        "payment-session-verifier",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerVerifier{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker[*Session](st),
		timeout: timeout,
	}
}

func (b *BreakerVerifier) VerifySession(ctx context.Context, sessionID string) (*Session, error) {
	s, err := b.cb.Execute(func() (*Session, error) {
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return b.next.VerifySession(ctx, sessionID)
	})
	if err == nil {
		return s, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, transient(err)
	}
	if !errors.Is(err, ErrTransient) {
		return nil, transient(err)
	}
	return nil, err
}
