package main

import (
	"context"
	"sync"
	"time"
)

type cleaner interface {
	Cleanup(ctx context.Context)
}

// startBackground launches the periodic jobs and returns a wait func that
// blocks until they have all stopped after ctx is cancelled.
func (app *application) startBackground(ctx context.Context) func() {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweepExpiredLeases(ctx, app.config.checkout.sweepInterval)
	}()

	if app.outbox != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.outbox.Run(ctx)
		}()
	}

	if c, ok := app.rateLimiter.(cleaner); ok && app.config.rateLimiter.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Cleanup(ctx)
		}()
	}

	return wg.Wait
}

// sweepExpiredLeases frees finalization leases left behind by attempts that
// died mid-flight so the next finalize call can retry straight away.
func (app *application) sweepExpiredLeases(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := app.checkout.SweepExpired(ctx)
			if err != nil {
				app.logger.Errorw("error releasing expired finalization leases", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Infow("released expired finalization leases", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
