// Package scheduler moves auctions through their time-driven lifecycle and
// settles them when they close.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artx-auction/internal/auctionstore"
	"artx-auction/internal/ledger"
	model "artx-auction/internal/models"
	"artx-auction/internal/repository"
	"artx-auction/utils"

	"github.com/shopspring/decimal"
)

// DefaultInterval is the pause between sweeps
const DefaultInterval = 5 * time.Second

// SweepReport summarizes one sweep
type SweepReport struct {
	Scanned   int `json:"scanned"`
	Activated int `json:"activated"`
	Ended     int `json:"ended"`
	Failed    int `json:"failed"`
}

// Scheduler sweeps scheduled and active auctions
type Scheduler struct {
	repo           repository.AuctionDB
	store          *auctionstore.Store
	ledger         *ledger.Ledger
	retry          repository.RetryPolicy
	commissionRate decimal.Decimal
	now            func() time.Time
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock overrides the scheduler clock
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithCommissionRate overrides the platform commission
func WithCommissionRate(rate decimal.Decimal) Option {
	return func(s *Scheduler) { s.commissionRate = rate }
}

// WithRetryPolicy overrides how conflicting transactions are retried
func WithRetryPolicy(p repository.RetryPolicy) Option {
	return func(s *Scheduler) { s.retry = p }
}

// New creates a Scheduler
func New(repo repository.AuctionDB, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:           repo,
		store:          auctionstore.New(repo),
		retry:          repository.DefaultRetryPolicy(),
		commissionRate: ledger.DefaultCommissionRate,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ledger = ledger.NewWithClock(s.now)
	return s
}

// transition is what one auction went through in a sweep
type transition struct {
	activated bool
	ended     bool
}

// Sweep checks every scheduled and active auction once. Each auction is
// advanced in its own transaction; a failure is logged and counted and
// the auction keeps its previous status until the next sweep.
func (s *Scheduler) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	candidates := make([]model.Auction, 0)
	for _, status := range []model.Status{model.StatusScheduled, model.StatusActive} {
		auctions, err := s.store.List(ctx, repository.AuctionFilter{Status: status})
		if err != nil {
			return report, fmt.Errorf("scheduler: %w", err)
		}
		candidates = append(candidates, auctions...)
	}

	now := s.now()
	for _, a := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		if !due(a, now) {
			continue
		}

		result, err := s.advance(ctx, a.AuctionID)
		if err != nil {
			report.Failed++
			utils.Error("Auction lifecycle transition failed", map[string]any{
				"auction_id": a.AuctionID,
				"status":     a.Status,
				"error":      err.Error(),
			})
			continue
		}
		if result.activated {
			report.Activated++
		}
		if result.ended {
			report.Ended++
		}
	}

	if report.Activated > 0 || report.Ended > 0 || report.Failed > 0 {
		utils.Info("Auction sweep finished", map[string]any{
			"scanned":   report.Scanned,
			"activated": report.Activated,
			"ended":     report.Ended,
			"failed":    report.Failed,
		})
	}
	return report, nil
}

// Refresh runs one sweep and reports only its error
func (s *Scheduler) Refresh(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

// Run sweeps every interval until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			utils.Error("Auction sweep failed", map[string]any{"error": err.Error()})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func due(a model.Auction, now time.Time) bool {
	switch a.Status {
	case model.StatusScheduled:
		return !now.Before(a.StartTime)
	case model.StatusActive:
		return !now.Before(a.EndTime)
	default:
		return false
	}
}

// advance re-reads the auction inside a transaction and applies every
// transition that is due. An auction that another sweep already moved is
// left untouched.
func (s *Scheduler) advance(ctx context.Context, auctionID string) (transition, error) {
	var result transition
	err := repository.RunWithRetry(ctx, s.repo, s.retry, func(tx repository.Tx) error {
		result = transition{}
		now := s.now()

		auction, err := s.store.Get(ctx, tx, auctionID)
		if err != nil {
			return err
		}

		if auction.Status == model.StatusScheduled && !now.Before(auction.StartTime) {
			status := model.StatusActive
			auction, err = s.store.UpdateFields(ctx, tx, auctionID, auctionstore.AuctionPatch{Status: &status})
			if err != nil {
				return err
			}
			result.activated = true
		}

		if auction.Status == model.StatusActive && !now.Before(auction.EndTime) {
			claimed, err := tx.ClaimKey(ctx, utils.IdempotencyKey(auctionID, string(model.StatusEnded)))
			if err != nil {
				return err
			}
			if !claimed {
				utils.Warn("Auction already settled", map[string]any{"auction_id": auctionID})
				return nil
			}
			if err := s.settle(ctx, tx, auction, now); err != nil {
				return err
			}
			result.ended = true
		}
		return nil
	})
	return result, err
}
