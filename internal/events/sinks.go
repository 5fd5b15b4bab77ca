package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tosho/internal/domain/purchases"
	"tosho/internal/mailer"

	"github.com/segmentio/kafka-go"
)

// Sink receives every outbox event. An error leaves the event unprocessed so
// it is offered again on the next tick.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e *Event) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaSink(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Handle(ctx context.Context, e *Event) error {
	msg := kafka.Message{
		Key:   []byte(e.AggregateID), // session id keeps a session's events ordered
		Value: e.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
		},
	}
	return s.writer.WriteMessages(ctx, msg)
}

// ReceiptSink emails a receipt for completed purchases that carry a customer email.
type ReceiptSink struct {
	mailer    mailer.Client
	storeName string
}

func NewReceiptSink(m mailer.Client, storeName string) *ReceiptSink {
	return &ReceiptSink{mailer: m, storeName: storeName}
}

func (s *ReceiptSink) Name() string { return "receipt" }

type receiptLine struct {
	ProductID string
	Quantity  int
	UnitPrice string
}

func (s *ReceiptSink) Handle(_ context.Context, e *Event) error {
	if e.EventType != purchases.EventPurchaseCompleted {
		return nil
	}

	var ev purchases.CompletedEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return fmt.Errorf("decode purchase event %d: %w", e.ID, err)
	}
	if ev.CustomerEmail == nil || *ev.CustomerEmail == "" {
		return nil
	}

	vars := struct {
		StoreName string
		Username  string
		SessionID string
		Lines     []receiptLine
		Total     string
	}{
		StoreName: s.storeName,
		Username:  *ev.CustomerEmail,
		SessionID: ev.SessionID,
		Total:     formatMoney(ev.AmountTotalCents, ev.Currency),
	}
	for _, r := range ev.Records {
		vars.Lines = append(vars.Lines, receiptLine{
			ProductID: r.ProductID,
			Quantity:  r.Quantity,
			UnitPrice: formatMoney(r.UnitPriceCents, ev.Currency),
		})
	}

	if _, err := s.mailer.Send(mailer.PurchaseReceiptTemplate, *ev.CustomerEmail, *ev.CustomerEmail, vars); err != nil {
		return fmt.Errorf("send receipt for %s: %w", ev.SessionID, err)
	}
	return nil
}

func formatMoney(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s %s%d.%02d", strings.ToUpper(currency), sign, cents/100, cents%100)
}
