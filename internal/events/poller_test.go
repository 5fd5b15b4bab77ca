package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"tosho/internal/domain/purchases"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type memOutbox struct {
	mu        sync.Mutex
	events    []*Event
	processed map[int64]bool
	fetchErr  error
}

func (m *memOutbox) GetUnprocessed(_ context.Context, limit int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []*Event
	for _, e := range m.events {
		if !m.processed[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memOutbox) MarkProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[id] = true
	return nil
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (f *fakeMailer) Send(_, _, email string, _ any) (int, error) {
	if f.err != nil {
		return -1, f.err
	}
	f.sent = append(f.sent, email)
	return 250, nil
}

func completedEvent(t *testing.T, id int64, session string, email *string) *Event {
	t.Helper()
	payload, err := json.Marshal(purchases.CompletedEvent{
		SessionID:        session,
		CustomerEmail:    email,
		AmountTotalCents: 1500,
		Currency:         "usd",
		Records:          []purchases.PurchaseRecord{{ID: "p1", SessionID: session, ProductID: "X", Quantity: 1, UnitPriceCents: 1500}},
	})
	require.NoError(t, err)
	return &Event{ID: id, AggregateID: session, EventType: purchases.EventPurchaseCompleted, Payload: payload}
}

func strPtr(s string) *string { return &s }

func TestOutboxPoller_PublishesAndMarks(t *testing.T) {
	repo := &memOutbox{processed: map[int64]bool{}}
	repo.events = []*Event{
		completedEvent(t, 1, "sess_1", strPtr("a@example.com")),
		completedEvent(t, 2, "sess_2", nil),
	}
	w := &recordingWriter{}
	m := &fakeMailer{}

	p := NewOutboxPoller(repo, time.Second, zap.NewNop().Sugar(), NewKafkaSink(w), NewReceiptSink(m, "Tosho"))

	assert.Equal(t, 2, p.ProcessOnce(context.Background()))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "sess_1", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, []string{"a@example.com"}, m.sent)
	assert.True(t, repo.processed[1])
	assert.True(t, repo.processed[2])

	assert.Zero(t, p.ProcessOnce(context.Background()))
}

func TestOutboxPoller_SinkFailureLeavesEventUnprocessed(t *testing.T) {
	repo := &memOutbox{processed: map[int64]bool{}}
	repo.events = []*Event{completedEvent(t, 1, "sess_1", strPtr("a@example.com"))}
	w := &recordingWriter{}
	m := &fakeMailer{err: errors.New("smtp down")}

	p := NewOutboxPoller(repo, time.Second, zap.NewNop().Sugar(), NewKafkaSink(w), NewReceiptSink(m, "Tosho"))

	assert.Zero(t, p.ProcessOnce(context.Background()))
	assert.False(t, repo.processed[1])

	m.err = nil
	assert.Equal(t, 1, p.ProcessOnce(context.Background()))
	assert.True(t, repo.processed[1])
	assert.Len(t, w.msgs, 2)
}

func TestOutboxPoller_FetchErrorIsLogged(t *testing.T) {
	repo := &memOutbox{processed: map[int64]bool{}, fetchErr: errors.New("db gone")}
	p := NewOutboxPoller(repo, time.Second, zap.NewNop().Sugar(), NewKafkaSink(&recordingWriter{}))

	assert.Zero(t, p.ProcessOnce(context.Background()))
}

func TestOutboxPoller_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &memOutbox{processed: map[int64]bool{}}
	repo.events = []*Event{completedEvent(t, 1, "sess_1", nil)}
	w := &recordingWriter{}
	p := NewOutboxPoller(repo, 5*time.Millisecond, zap.NewNop().Sugar(), NewKafkaSink(w))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.processed[1]
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestReceiptSink_IgnoresOtherEvents(t *testing.T) {
	m := &fakeMailer{}
	s := NewReceiptSink(m, "Tosho")

	err := s.Handle(context.Background(), &Event{ID: 9, EventType: "cart.updated", Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.Empty(t, m.sent)
}

func TestReceiptSink_BadPayload(t *testing.T) {
	s := NewReceiptSink(&fakeMailer{}, "Tosho")
	err := s.Handle(context.Background(), &Event{ID: 3, EventType: purchases.EventPurchaseCompleted, Payload: []byte(`{bad`)})
	assert.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "USD 15.00", formatMoney(1500, "usd"))
	assert.Equal(t, "EUR 0.05", formatMoney(5, "eur"))
	assert.Equal(t, "USD -1.25", formatMoney(-125, "usd"))
}
