package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultBatchSize = 100

// OutboxPoller hands unprocessed outbox events to every sink and marks an
// event processed only once all sinks accepted it. Delivery is at least once.
type OutboxPoller struct {
	repo      Store
	sinks     []Sink
	tick      time.Duration
	batchSize int
	logger    *zap.SugaredLogger
}

func NewOutboxPoller(repo Store, tick time.Duration, logger *zap.SugaredLogger, sinks ...Sink) *OutboxPoller {
	if tick <= 0 {
		tick = time.Second
	}
	return &OutboxPoller{
		repo:      repo,
		sinks:     sinks,
		tick:      tick,
		batchSize: defaultBatchSize,
		logger:    logger,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.ProcessOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessOnce runs a single poll and returns how many events were marked processed.
func (p *OutboxPoller) ProcessOnce(ctx context.Context) int {
	events, err := p.repo.GetUnprocessed(ctx, p.batchSize)
	if err != nil {
		p.logger.Errorw("failed to fetch outbox events", "error", err)
		return 0
	}

	done := 0
	for _, e := range events {
		if !p.deliver(ctx, e) {
			continue
		}
		if err := p.repo.MarkProcessed(ctx, e.ID); err != nil {
			p.logger.Errorw("failed to mark outbox event processed", "event_id", e.ID, "error", err)
			continue
		}
		done++
	}
	return done
}

func (p *OutboxPoller) deliver(ctx context.Context, e *Event) bool {
	for _, s := range p.sinks {
		if err := s.Handle(ctx, e); err != nil {
			p.logger.Errorw("failed to deliver outbox event",
				"event_id", e.ID,
				"event_type", e.EventType,
				"sink", s.Name(),
				"error", err,
			)
			return false
		}
	}
	return true
}
