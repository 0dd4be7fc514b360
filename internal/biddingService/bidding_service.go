package bidding

import (
	"context"
	"fmt"
	"sort"
	"time"

	"artx-auction/internal/auctionstore"
	"artx-auction/internal/biddingerrors"
	"artx-auction/internal/ledger"
	model "artx-auction/internal/models"
	"artx-auction/internal/notify"
	"artx-auction/internal/repository"
	"artx-auction/utils"

	"github.com/shopspring/decimal"
)

// DefaultAuctionFee is the hosting fee charged to an artist per auction
var DefaultAuctionFee = decimal.NewFromInt(10)

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo        repository.AuctionDB
	store       *auctionstore.Store
	ledger      *ledger.Ledger
	retry       repository.RetryPolicy
	auctionFee  decimal.Decimal
	canWithdraw WithdrawPolicy
	sweep       func(ctx context.Context) error
	now         func() time.Time
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithClock overrides the service clock
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// WithRetryPolicy overrides how conflicting transactions are retried
func WithRetryPolicy(p repository.RetryPolicy) Option {
	return func(s *BiddingService) { s.retry = p }
}

// WithAuctionFee overrides the hosting fee
func WithAuctionFee(fee decimal.Decimal) Option {
	return func(s *BiddingService) { s.auctionFee = fee }
}

// WithWithdrawPolicy replaces the rule deciding who may withdraw
func WithWithdrawPolicy(p WithdrawPolicy) Option {
	return func(s *BiddingService) { s.canWithdraw = p }
}

// WithSweeper makes RefreshAuctions run a lifecycle sweep before listing
func WithSweeper(sweep func(ctx context.Context) error) Option {
	return func(s *BiddingService) { s.sweep = sweep }
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:        repo,
		store:       auctionstore.New(repo),
		retry:       repository.DefaultRetryPolicy(),
		auctionFee:  DefaultAuctionFee,
		canWithdraw: CanWithdraw,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ledger = ledger.NewWithClock(s.now)
	return s
}

// PlaceBid validates a bid against the committed auction and bidder
// account and applies it together with the resulting holds, releases and
// notifications in one transaction
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (model.Bid, error) {
	if auctionID == "" || bidderID == "" {
		return model.Bid{}, fmt.Errorf("service: %w", biddingerrors.Invalid("bid", "missing auction or bidder id"))
	}
	if !amount.IsPositive() {
		return model.Bid{}, fmt.Errorf("service: %w", biddingerrors.Invalid("amount", "must be greater than zero"))
	}

	var placed model.Bid
	err := repository.RunWithRetry(ctx, s.repo, s.retry, func(tx repository.Tx) error {
		bid, err := s.placeBidTx(ctx, tx, auctionID, bidderID, amount)
		placed = bid
		return err
	})
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to place bid on auction %s by %s: %w", auctionID, bidderID, err)
	}

	utils.Info("Bid placed", map[string]any{
		"bid_id":     placed.BidID,
		"auction_id": auctionID,
		"bidder_id":  bidderID,
		"amount":     amount.String(),
	})
	return placed, nil
}

func (s *BiddingService) placeBidTx(ctx context.Context, tx repository.Tx, auctionID, bidderID string, amount decimal.Decimal) (model.Bid, error) {
	now := s.now()

	auction, err := s.store.Get(ctx, tx, auctionID)
	if err != nil {
		return model.Bid{}, err
	}
	if auction.Status != model.StatusActive {
		return model.Bid{}, biddingerrors.InvalidState(auctionID, string(auction.Status), "Auction is not active")
	}
	if now.After(auction.EndTime) {
		return model.Bid{}, biddingerrors.InvalidState(auctionID, string(auction.Status), "Auction has ended")
	}
	if bidderID == auction.ArtistID {
		return model.Bid{}, biddingerrors.Unauthorized(bidderID, "Artists cannot bid on their own auction")
	}

	minimum := auction.CurrentPrice.Add(auction.MinBidIncrement)
	if amount.LessThanOrEqual(auction.CurrentPrice) {
		return model.Bid{}, &biddingerrors.BidTooLowError{Amount: amount, Minimum: minimum, Reason: "Bid must be higher than current price"}
	}
	if amount.LessThan(minimum) {
		return model.Bid{}, &biddingerrors.BidTooLowError{
			Amount:  amount,
			Minimum: minimum,
			Reason:  fmt.Sprintf("Minimum bid increment is $%s", auction.MinBidIncrement.StringFixed(2)),
		}
	}

	bidder, err := tx.GetAccount(ctx, bidderID)
	if err != nil {
		return model.Bid{}, err
	}
	if amount.GreaterThan(bidder.Available()) {
		return model.Bid{}, &biddingerrors.InsufficientFundsError{
			AccountID: bidderID,
			Available: bidder.Available(),
			Required:  amount,
			Purpose:   "this bid",
		}
	}

	bid := model.Bid{
		BidID:      utils.GenerateID(),
		AuctionID:  auctionID,
		BidderID:   bidderID,
		BidderName: bidder.Name,
		Amount:     amount,
		Timestamp:  now,
	}
	if err := tx.SaveBid(ctx, bid); err != nil {
		return model.Bid{}, err
	}

	previousLeader := auction.WinnerID
	previousPrice := auction.CurrentPrice

	// a leader raising their own bid already has previousPrice on hold
	additional := amount
	if previousLeader == bidderID {
		additional = amount.Sub(previousPrice)
	}
	records := make([]model.Transaction, 0, 2)
	hold, err := s.ledger.Hold(&bidder, additional, auctionID, fmt.Sprintf("Bid hold on %q", auction.Title))
	if err != nil {
		return model.Bid{}, err
	}
	records = append(records, hold)
	if err := tx.SaveAccount(ctx, bidder); err != nil {
		return model.Bid{}, err
	}

	if previousLeader != "" && previousLeader != bidderID {
		prev, err := tx.GetAccount(ctx, previousLeader)
		if err != nil {
			return model.Bid{}, err
		}
		records = append(records, s.ledger.Release(&prev, previousPrice, auctionID, fmt.Sprintf("Outbid on %q", auction.Title)))
		if err := tx.SaveAccount(ctx, prev); err != nil {
			return model.Bid{}, err
		}
	}

	totalBids := auction.TotalBids + 1
	history := append(auction.PriceHistory, model.PricePoint{BidID: bid.BidID, Price: amount, Timestamp: now})
	updated, err := s.store.UpdateFields(ctx, tx, auctionID, auctionstore.AuctionPatch{
		CurrentPrice: &amount,
		WinnerID:     &bidder.AccountID,
		WinnerName:   &bidder.Name,
		TotalBids:    &totalBids,
		PriceHistory: history,
	})
	if err != nil {
		return model.Bid{}, err
	}

	if err := tx.AppendTransactions(ctx, records...); err != nil {
		return model.Bid{}, err
	}

	notes := make([]model.Notification, 0, len(updated.Watchers)+2)
	if previousLeader != "" && previousLeader != bidderID {
		notes = append(notes, notify.Outbid(updated, previousLeader, bid, now))
	}
	notes = append(notes, notify.NewBidForArtist(updated, bid, now))
	for _, w := range updated.Watchers {
		if w == bidderID || w == previousLeader || w == updated.ArtistID {
			continue
		}
		notes = append(notes, notify.NewBidForWatcher(updated, w, bid, now))
	}
	if err := tx.EnqueueNotifications(ctx, notes...); err != nil {
		return model.Bid{}, err
	}
	return bid, nil
}

// GetAuction returns the committed auction
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w", biddingerrors.Invalid("auction_id", "must not be empty"))
	}
	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// GetAuctionBids returns the non-withdrawn bids of an auction, newest first
func (s *BiddingService) GetAuctionBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w", biddingerrors.Invalid("auction_id", "must not be empty"))
	}
	all, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	bids := make([]model.Bid, 0, len(all))
	for _, b := range all {
		if !b.Withdrawn {
			bids = append(bids, b)
		}
	}
	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].Timestamp.After(bids[j].Timestamp)
	})
	return bids, nil
}

// ListAuctions returns auctions matching filter
func (s *BiddingService) ListAuctions(ctx context.Context, filter repository.AuctionFilter) ([]model.Auction, error) {
	auctions, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return auctions, nil
}

// RefreshAuctions brings auction statuses up to date and returns every
// auction. This is the poll feed used by countdown displays.
func (s *BiddingService) RefreshAuctions(ctx context.Context) ([]model.Auction, error) {
	if s.sweep != nil {
		if err := s.sweep(ctx); err != nil {
			// a failed sweep still leaves the committed state readable
			utils.Warn("RefreshAuctions: sweep failed", map[string]any{"error": err.Error()})
		}
	}
	return s.ListAuctions(ctx, repository.AuctionFilter{})
}
