package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tosho/internal/auth"
	"tosho/internal/domain/finalization"
	"tosho/internal/domain/purchases"
	"tosho/internal/payments"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Engine turns a paid payment session into purchase records exactly once.
// The finalization status row is the idempotency ledger; the lease on it
// decides which caller may verify and write.
type Engine struct {
	verifier payments.SessionVerifier
	statuses finalization.Store
	ledger   purchases.Store
	carts    CartClearer
	logger   *zap.SugaredLogger
	cfg      Config
	sfg      singleflight.Group
	now      func() time.Time
	newID    func() string
}

func NewEngine(
	verifier payments.SessionVerifier,
	statuses finalization.Store,
	ledger purchases.Store,
	carts CartClearer,
	logger *zap.SugaredLogger,
	cfg Config,
) *Engine {
	return &Engine{
		verifier: verifier,
		statuses: statuses,
		ledger:   ledger,
		carts:    carts,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Finalize is safe to call any number of times for the same session. The
// returned error is reserved for storage faults; verifier and ledger outcomes
// are reported through Result.
func (e *Engine) Finalize(ctx context.Context, sessionID string, id *auth.Identity) (*Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return &Result{Outcome: OutcomeNothing}, nil
	}

	// Duplicate requests inside this process share one attempt.
	key := sessionID
	if id != nil {
		key += "|" + id.UserID
	}
	v, err, _ := e.sfg.Do(key, func() (any, error) {
		return e.finalize(ctx, sessionID, id)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	return &res, nil
}

func (e *Engine) finalize(ctx context.Context, sessionID string, id *auth.Identity) (*Result, error) {
	st, err := e.statuses.Get(ctx, sessionID)
	switch {
	case errors.Is(err, finalization.ErrNotFound):
		if st, _, err = e.statuses.CreateIfAbsent(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("create finalization status: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("get finalization status: %w", err)
	}

	if st.State == finalization.StateCompleted {
		return e.completedResult(ctx, st)
	}

	token := e.newID()
	deadline := e.now().Add(e.cfg.WaitTimeout)
	for {
		cur, ok, err := e.statuses.Acquire(ctx, sessionID, token, e.cfg.LeaseTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire finalization lease: %w", err)
		}
		if ok {
			return e.attempt(ctx, sessionID, token, id)
		}
		if cur.State == finalization.StateCompleted {
			return e.completedResult(ctx, cur)
		}

		if !e.now().Before(deadline) {
			return inProgress(sessionID), nil
		}
		if err := sleep(ctx, e.cfg.PollInterval); err != nil {
			return inProgress(sessionID), nil
		}
	}
}

func inProgress(sessionID string) *Result {
	return &Result{
		Outcome:   OutcomeRetry,
		SessionID: sessionID,
		Reason:    ErrFinalizationInProgress.Error(),
		Err:       ErrFinalizationInProgress,
	}
}

// attempt runs with the lease held. It detaches from the caller's context so
// a client that goes away cannot leave the status pending mid-write.
func (e *Engine) attempt(parent context.Context, sessionID, token string, id *auth.Identity) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), e.cfg.LeaseTTL)
	defer cancel()

	sess, err := e.verifier.VerifySession(ctx, sessionID)
	if err != nil {
		e.logger.Warnw("payment session verification failed", "session_id", sessionID, "err", err)
		e.release(ctx, sessionID, token)
		return &Result{
			Outcome:   OutcomeRetry,
			SessionID: sessionID,
			Reason:    ErrTransientVerifier.Error(),
			Err:       fmt.Errorf("%w: %v", ErrTransientVerifier, err),
		}, nil
	}

	if sess.Status != payments.SessionPaid {
		reason := sess.Reason
		if reason == "" {
			reason = fmt.Sprintf("payment session is %s", sess.Status)
		}
		if _, _, err := e.statuses.Fail(ctx, sessionID, token, reason); err != nil {
			e.release(ctx, sessionID, token)
			return nil, fmt.Errorf("fail finalization status: %w", err)
		}
		e.logger.Infow("payment session not paid", "session_id", sessionID, "status", sess.Status, "reason", reason)
		return &Result{
			Outcome:   OutcomeFailed,
			SessionID: sessionID,
			Reason:    reason,
			Err:       ErrInvalidSession,
		}, nil
	}

	userID := sess.CustomerRef
	if id != nil {
		userID = id.UserID
	}

	batch := e.buildBatch(sess, userID)
	records := batch.Records

	err = e.ledger.AppendBatch(ctx, batch)
	switch {
	case errors.Is(err, purchases.ErrLedgerConflict):
		// An earlier attempt wrote the batch but never completed the status.
		e.logger.Infow("purchase batch already recorded, reading back", "session_id", sessionID, "err", ErrLedgerWriteConflict)
		records, err = e.ledger.ListBySession(ctx, sessionID)
		if err != nil {
			e.release(ctx, sessionID, token)
			return nil, fmt.Errorf("read back purchases: %w", err)
		}
	case err != nil:
		e.logger.Errorw("purchase batch write failed", "session_id", sessionID, "err", err)
		reason := ErrLedgerWriteFailure.Error()
		if _, _, ferr := e.statuses.Fail(ctx, sessionID, token, reason); ferr != nil {
			e.logger.Errorw("fail finalization status failed", "session_id", sessionID, "err", ferr)
			e.release(ctx, sessionID, token)
		}
		return &Result{
			Outcome:   OutcomeFailed,
			SessionID: sessionID,
			Reason:    reason,
			Err:       fmt.Errorf("%w: %v", ErrLedgerWriteFailure, err),
		}, nil
	}

	ids := recordIDs(records)
	st, ok, err := e.statuses.Complete(ctx, sessionID, token, ids)
	if err != nil {
		e.release(ctx, sessionID, token)
		return nil, fmt.Errorf("complete finalization status: %w", err)
	}
	if !ok {
		// The lease expired under us. The batch is on disk, so whoever holds
		// the status now completes it through the conflict read-back.
		if st.State == finalization.StateCompleted {
			return e.completedResult(ctx, st)
		}
		e.logger.Warnw("finalization lease lost before completion", "session_id", sessionID, "state", st.State)
		return inProgress(sessionID), nil
	}

	if id != nil {
		if err := e.carts.ClearUser(ctx, id.UserID); err != nil {
			e.logger.Errorw("cart clear after finalization failed",
				"session_id", sessionID,
				"user_id", id.UserID,
				"err", fmt.Errorf("%w: %v", ErrCartClearFailure, err),
			)
		}
	}

	e.logger.Infow("checkout finalized", "session_id", sessionID, "user_id", userID, "purchases", len(ids))
	return &Result{
		Outcome:         OutcomeCompleted,
		SessionID:       sessionID,
		PurchaseIDs:     ids,
		Records:         records,
		ClearCartCookie: true,
	}, nil
}

func (e *Engine) buildBatch(sess *payments.Session, userID string) *purchases.Batch {
	now := e.now().UTC()
	b := &purchases.Batch{
		SessionID:        sess.ID,
		UserID:           userID,
		CustomerEmail:    sess.CustomerEmail,
		AmountTotalCents: sess.AmountTotalCents,
		Currency:         sess.Currency,
		Records:          make([]purchases.PurchaseRecord, 0, len(sess.Items)),
	}
	for _, it := range sess.Items {
		b.Records = append(b.Records, purchases.PurchaseRecord{
			ID:             e.newID(),
			SessionID:      sess.ID,
			UserID:         userID,
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			CreatedAt:      now,
		})
	}
	return b
}

func (e *Engine) completedResult(ctx context.Context, st *finalization.Status) (*Result, error) {
	records, err := e.ledger.ListBySession(ctx, st.SessionID)
	if err != nil {
		return nil, fmt.Errorf("read back purchases: %w", err)
	}
	return &Result{
		Outcome:         OutcomeCompleted,
		SessionID:       st.SessionID,
		PurchaseIDs:     st.PurchaseIDs,
		Records:         records,
		ClearCartCookie: true,
		Idempotent:      true,
	}, nil
}

func (e *Engine) release(ctx context.Context, sessionID, token string) {
	if err := e.statuses.Release(ctx, sessionID, token); err != nil {
		e.logger.Errorw("release finalization lease failed", "session_id", sessionID, "err", err)
	}
}

// Status reports the checkout-completion view for a session.
func (e *Engine) Status(ctx context.Context, sessionID string) (*StatusView, error) {
	st, err := e.statuses.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	v := &StatusView{SessionID: st.SessionID, Attempts: st.Attempts}
	switch st.State {
	case finalization.StateCompleted:
		v.View = ViewSuccess
		v.PurchaseIDs = st.PurchaseIDs
	case finalization.StateFailed:
		v.View = ViewError
		if st.FailureReason != nil {
			v.Message = *st.FailureReason
		}
	default:
		v.View = ViewProcessing
		v.Stalled = st.LeaseToken != nil && !st.Held(e.now())
	}
	return v, nil
}

// SweepExpired clears leases whose holder went away without settling.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	n, err := e.statuses.ReleaseExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("release expired leases: %w", err)
	}
	return n, nil
}

func recordIDs(records []purchases.PurchaseRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
