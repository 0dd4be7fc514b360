package notify

import (
	"context"
	"fmt"
	"time"

	"artx-auction/internal/repository"
	"artx-auction/utils"
)

const (
	defaultBatchSize = 100
	defaultClaimTTL  = time.Minute
)

// Dispatcher drains the notification outbox into a Publisher
type Dispatcher struct {
	repo      repository.AuctionDB
	publisher Publisher
	claimer   Claimer
	batchSize int
	claimTTL  time.Duration
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher. A nil claimer means single-replica delivery.
func NewDispatcher(repo repository.AuctionDB, publisher Publisher, claimer Claimer) *Dispatcher {
	if claimer == nil {
		claimer = NewMemoryClaimer()
	}
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		claimer:   claimer,
		batchSize: defaultBatchSize,
		claimTTL:  defaultClaimTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// DispatchPending publishes one batch of undelivered notifications and
// returns how many were delivered. A publish failure leaves the row pending
// for the next run.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	pending, err := d.repo.PendingNotifications(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("dispatcher: failed to load pending notifications: %w", err)
	}

	delivered := 0
	for _, n := range pending {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		claimed, err := d.claimer.Claim(ctx, n.NotificationID, d.claimTTL)
		if err != nil {
			utils.Warn("Notification claim failed", map[string]any{"notification_id": n.NotificationID, "error": err.Error()})
			continue
		}
		if !claimed {
			continue
		}

		if err := d.publisher.Publish(ctx, n); err != nil {
			utils.Error("Notification publish failed", map[string]any{
				"notification_id": n.NotificationID,
				"user_id":         n.UserID,
				"type":            n.Type,
				"error":           err.Error(),
			})
			if relErr := d.claimer.Release(ctx, n.NotificationID); relErr != nil {
				utils.Warn("Notification claim release failed", map[string]any{"notification_id": n.NotificationID, "error": relErr.Error()})
			}
			continue
		}

		if err := d.repo.MarkDispatched(ctx, n.NotificationID, d.now()); err != nil {
			// the claim stays until it expires, which keeps the row from being re-sent meanwhile
			utils.Error("Notification mark dispatched failed", map[string]any{"notification_id": n.NotificationID, "error": err.Error()})
			continue
		}
		delivered++
	}
	return delivered, nil
}

// Run calls DispatchPending every interval until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := d.DispatchPending(ctx); err != nil {
			utils.Error("Notification dispatch failed", map[string]any{"error": err.Error()})
		} else if n > 0 {
			utils.Debug("Notifications dispatched", map[string]any{"count": n})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
