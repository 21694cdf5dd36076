package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"convertax/internal/models"
	"convertax/internal/repository"
)

// DefaultMaxAttempts is the number of failed emissions after which an event
// is parked.
const DefaultMaxAttempts = 10

// Relay forwards committed outbox rows to a Notifier. Delivery is
// at-least-once: an event whose emission succeeded but whose dispatch mark
// failed is emitted again on the next pass.
type Relay struct {
	store       repository.OutboxStore
	notifier    Notifier
	interval    time.Duration
	batchSize   int
	maxAttempts int
	log         *zap.SugaredLogger
	now         func() time.Time

	// mu serialises passes of this relay. Other relays sharing the store are
	// kept apart by the row locks taken in ClaimPending.
	mu sync.Mutex
}

// NewRelay creates a Relay polling store every interval. An event failing
// maxAttempts times is parked and no longer blocks the events behind it.
func NewRelay(store repository.OutboxStore, notifier Notifier, interval time.Duration, batchSize, maxAttempts int, log *zap.SugaredLogger) *Relay {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Relay{
		store:       store,
		notifier:    notifier,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		log:         log,
		now:         time.Now,
	}
}

// DispatchPending claims one batch of pending events and emits it in order.
// The batch stops at the first failing event so later events never overtake
// it, unless that failure exhausts the event's attempts and parks it.
func (r *Relay) DispatchPending(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sent := 0
	var emitErr error
	err := r.store.ClaimPending(ctx, r.batchSize, func(tx repository.OutboxStore, pending []models.OutboxEvent) error {
		for _, evt := range pending {
			sendErr := r.notifier.Emit(ctx, evt.Topic, []byte(evt.Payload))
			if sendErr == nil {
				if err := tx.MarkDispatched(ctx, evt.ID, r.now()); err != nil {
					return err
				}
				sent++
				continue
			}

			attempts := evt.Attempts + 1
			if attempts >= r.maxAttempts {
				if err := tx.MarkParked(ctx, evt.ID, sendErr, r.now()); err != nil {
					return err
				}
				r.log.Errorw("outbox event parked",
					"event_id", evt.ID,
					"topic", evt.Topic,
					"attempts", attempts,
					"error", sendErr,
				)
				continue
			}

			if err := tx.MarkFailed(ctx, evt.ID, sendErr); err != nil {
				return err
			}
			emitErr = sendErr
			return nil
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, emitErr
}

// Run dispatches pending events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Infow("outbox relay started", "interval", r.interval, "batch_size", r.batchSize)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			n, err := r.DispatchPending(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.log.Warnw("outbox dispatch failed", "dispatched", n, "error", err)
				continue
			}
			if n > 0 {
				r.log.Debugw("outbox dispatched", "count", n)
			}
		}
	}
}
