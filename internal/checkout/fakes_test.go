package checkout

import (
	"context"
	"sync"
	"time"

	"tosho/internal/domain/finalization"
	"tosho/internal/domain/purchases"
	"tosho/internal/payments"
)

type memStatuses struct {
	mu   sync.Mutex
	rows map[string]*finalization.Status
}

func newMemStatuses() *memStatuses {
	return &memStatuses{rows: map[string]*finalization.Status{}}
}

func (m *memStatuses) copyOf(s *finalization.Status) *finalization.Status {
	out := *s
	out.PurchaseIDs = append([]string(nil), s.PurchaseIDs...)
	return &out
}

func (m *memStatuses) Get(_ context.Context, id string) (*finalization.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, finalization.ErrNotFound
	}
	return m.copyOf(s), nil
}

func (m *memStatuses) CreateIfAbsent(_ context.Context, id string) (*finalization.Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok {
		return m.copyOf(s), false, nil
	}
	now := time.Now()
	s := &finalization.Status{SessionID: id, State: finalization.StatePending, CreatedAt: now, UpdatedAt: now}
	m.rows[id] = s
	return m.copyOf(s), true, nil
}

func (m *memStatuses) Acquire(_ context.Context, id, token string, ttl time.Duration) (*finalization.Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, false, finalization.ErrNotFound
	}
	now := time.Now()
	if s.State == finalization.StateCompleted || s.Held(now) {
		return m.copyOf(s), false, nil
	}
	exp := now.Add(ttl)
	s.State = finalization.StatePending
	s.LeaseToken = &token
	s.LeaseExpiresAt = &exp
	s.Attempts++
	s.FailureReason = nil
	return m.copyOf(s), true, nil
}

func (m *memStatuses) settle(id, token string, apply func(s *finalization.Status)) (*finalization.Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, false, finalization.ErrNotFound
	}
	if s.State != finalization.StatePending || s.LeaseToken == nil || *s.LeaseToken != token {
		return m.copyOf(s), false, nil
	}
	apply(s)
	s.LeaseToken = nil
	s.LeaseExpiresAt = nil
	return m.copyOf(s), true, nil
}

func (m *memStatuses) Complete(_ context.Context, id, token string, ids []string) (*finalization.Status, bool, error) {
	return m.settle(id, token, func(s *finalization.Status) {
		now := time.Now()
		s.State = finalization.StateCompleted
		s.PurchaseIDs = append([]string(nil), ids...)
		s.CompletedAt = &now
	})
}

func (m *memStatuses) Fail(_ context.Context, id, token, reason string) (*finalization.Status, bool, error) {
	return m.settle(id, token, func(s *finalization.Status) {
		s.State = finalization.StateFailed
		s.FailureReason = &reason
	})
}

func (m *memStatuses) Release(_ context.Context, id, token string) error {
	_, _, err := m.settle(id, token, func(*finalization.Status) {})
	return err
}

func (m *memStatuses) ReleaseExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for _, s := range m.rows {
		if s.State == finalization.StatePending && s.LeaseToken != nil && !s.Held(now) {
			s.LeaseToken = nil
			s.LeaseExpiresAt = nil
			n++
		}
	}
	return n, nil
}

type memLedger struct {
	mu      sync.Mutex
	batches map[string]*purchases.Batch
	writes  int
	err     error
}

func newMemLedger() *memLedger {
	return &memLedger{batches: map[string]*purchases.Batch{}}
}

func (m *memLedger) AppendBatch(_ context.Context, b *purchases.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.batches[b.SessionID]; ok {
		return purchases.ErrLedgerConflict
	}
	cp := *b
	cp.Records = append([]purchases.PurchaseRecord(nil), b.Records...)
	m.batches[b.SessionID] = &cp
	m.writes++
	return nil
}

func (m *memLedger) ListBySession(_ context.Context, id string) ([]purchases.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, nil
	}
	return append([]purchases.PurchaseRecord(nil), b.Records...), nil
}

func (m *memLedger) ListByUser(_ context.Context, userID string, _, _ int) ([]purchases.PurchaseRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []purchases.PurchaseRecord
	for _, b := range m.batches {
		for _, r := range b.Records {
			if r.UserID == userID {
				out = append(out, r)
			}
		}
	}
	return out, len(out), nil
}

func (m *memLedger) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type fakeVerifier struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, id string) (*payments.Session, error)
}

func (f *fakeVerifier) VerifySession(ctx context.Context, id string) (*payments.Session, error) {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	return fn(ctx, id)
}

func (f *fakeVerifier) set(fn func(ctx context.Context, id string) (*payments.Session, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
}

func (f *fakeVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCarts struct {
	mu    sync.Mutex
	items map[string][]string
	err   error
	calls int
}

func (f *fakeCarts) ClearUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	delete(f.items, userID)
	return nil
}

func paid(items ...payments.LineItem) func(context.Context, string) (*payments.Session, error) {
	return func(_ context.Context, id string) (*payments.Session, error) {
		var total int64
		for _, it := range items {
			total += it.UnitPriceCents * int64(it.Quantity)
		}
		return &payments.Session{
			ID:               id,
			Status:           payments.SessionPaid,
			Items:            items,
			AmountTotalCents: total,
			Currency:         "usd",
		}, nil
	}
}

func unpaid(_ context.Context, id string) (*payments.Session, error) {
	return &payments.Session{ID: id, Status: payments.SessionUnpaid}, nil
}
