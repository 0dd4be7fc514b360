package bidding

import (
	"context"
	"fmt"
	"sort"

	"artx-auction/internal/auctionstore"
	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"
	"artx-auction/internal/notify"
	"artx-auction/internal/repository"
	"artx-auction/utils"

	"github.com/shopspring/decimal"
)

// WithdrawPolicy decides whether bidderID may withdraw from auction
type WithdrawPolicy func(auction model.Auction, bidderID string) error

// CanWithdraw allows only the current leader to withdraw
func CanWithdraw(auction model.Auction, bidderID string) error {
	if auction.WinnerID != bidderID {
		return biddingerrors.Unauthorized(bidderID, "You are not the current highest bidder")
	}
	return nil
}

// WithdrawBid withdraws the bidder's highest bid and promotes the next
// highest bid from another bidder, or resets the auction if none remains
func (s *BiddingService) WithdrawBid(ctx context.Context, auctionID, bidderID string) (model.Auction, error) {
	if auctionID == "" || bidderID == "" {
		return model.Auction{}, fmt.Errorf("service: %w", biddingerrors.Invalid("bid", "missing auction or bidder id"))
	}

	var updated model.Auction
	err := repository.RunWithRetry(ctx, s.repo, s.retry, func(tx repository.Tx) error {
		a, err := s.withdrawBidTx(ctx, tx, auctionID, bidderID)
		updated = a
		return err
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to withdraw bid on auction %s by %s: %w", auctionID, bidderID, err)
	}

	utils.Info("Bid withdrawn", map[string]any{
		"auction_id":    auctionID,
		"bidder_id":     bidderID,
		"current_price": updated.CurrentPrice.String(),
		"winner_id":     updated.WinnerID,
	})
	return updated, nil
}

func (s *BiddingService) withdrawBidTx(ctx context.Context, tx repository.Tx, auctionID, bidderID string) (model.Auction, error) {
	now := s.now()

	auction, err := s.store.Get(ctx, tx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	if auction.Status != model.StatusActive {
		return model.Auction{}, biddingerrors.InvalidState(auctionID, string(auction.Status), "Auction is not active")
	}
	if now.After(auction.EndTime) {
		return model.Auction{}, biddingerrors.InvalidState(auctionID, string(auction.Status), "Auction has ended")
	}
	if err := s.canWithdraw(auction, bidderID); err != nil {
		return model.Auction{}, err
	}

	bids, err := tx.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	rankBids(bids)

	var withdrawn model.Bid
	found := false
	for _, b := range bids {
		if b.BidderID == bidderID && !b.Withdrawn {
			withdrawn, found = b, true
			break
		}
	}
	if !found {
		return model.Auction{}, biddingerrors.NotFound("bid", bidderID)
	}

	bidder, err := tx.GetAccount(ctx, bidderID)
	if err != nil {
		return model.Auction{}, err
	}
	records := []model.Transaction{
		s.ledger.Release(&bidder, withdrawn.Amount, auctionID, fmt.Sprintf("Bid withdrawn from %q", auction.Title)),
	}
	if err := tx.SaveAccount(ctx, bidder); err != nil {
		return model.Auction{}, err
	}

	notes := make([]model.Notification, 0, 2)
	var patch auctionstore.AuctionPatch

	next, hold, skipped, err := s.promoteNextBid(ctx, tx, bids, bidderID, auction)
	if err != nil {
		return model.Auction{}, err
	}

	// the withdrawing bidder and skipped candidates leave the auction with all their bids
	leaving := map[string]bool{bidderID: true}
	for _, id := range skipped {
		leaving[id] = true
	}
	removed := make(map[string]bool)
	live := 0
	for _, b := range bids {
		if b.Withdrawn {
			continue
		}
		if !leaving[b.BidderID] {
			live++
			continue
		}
		b.Withdrawn = true
		if err := tx.SaveBid(ctx, b); err != nil {
			return model.Auction{}, err
		}
		removed[b.BidID] = true
	}

	if next != nil {
		records = append(records, hold)
		patch = auctionstore.AuctionPatch{
			CurrentPrice: &next.Amount,
			WinnerID:     &next.BidderID,
			WinnerName:   &next.BidderName,
			TotalBids:    &live,
			PriceHistory: withoutBids(auction.PriceHistory, removed),
		}
	} else {
		none, zero := "", 0
		patch = auctionstore.AuctionPatch{
			CurrentPrice: &auction.StartingPrice,
			WinnerID:     &none,
			WinnerName:   &none,
			TotalBids:    &zero,
			PriceHistory: []model.PricePoint{{Price: auction.StartingPrice, Timestamp: now}},
		}
	}

	updated, err := s.store.UpdateFields(ctx, tx, auctionID, patch)
	if err != nil {
		return model.Auction{}, err
	}
	if next != nil {
		notes = append(notes, notify.NowWinning(updated, *next, withdrawn, now))
	}
	notes = append(notes, notify.BidWithdrawn(updated, withdrawn, now))

	if err := tx.AppendTransactions(ctx, records...); err != nil {
		return model.Auction{}, err
	}
	if err := tx.EnqueueNotifications(ctx, notes...); err != nil {
		return model.Auction{}, err
	}
	return updated, nil
}

// promoteNextBid holds funds for the highest remaining bid from another
// bidder. Candidates whose available funds no longer cover their bid are
// skipped and returned in skipped. bids must already be ranked.
func (s *BiddingService) promoteNextBid(ctx context.Context, tx repository.Tx, bids []model.Bid, withdrawingID string, auction model.Auction) (next *model.Bid, hold model.Transaction, skipped []string, err error) {
	tried := make(map[string]bool)
	for i := range bids {
		b := bids[i]
		if b.Withdrawn || b.BidderID == withdrawingID || tried[b.BidderID] {
			continue
		}
		tried[b.BidderID] = true

		acct, err := tx.GetAccount(ctx, b.BidderID)
		if err != nil {
			return nil, model.Transaction{}, nil, err
		}
		if acct.Available().LessThan(b.Amount) {
			utils.Warn("Skipping underfunded bid on withdrawal", map[string]any{
				"auction_id": auction.AuctionID,
				"bid_id":     b.BidID,
				"bidder_id":  b.BidderID,
				"available":  acct.Available().String(),
				"amount":     b.Amount.String(),
			})
			skipped = append(skipped, b.BidderID)
			continue
		}
		hold, err := s.ledger.Hold(&acct, b.Amount, auction.AuctionID, fmt.Sprintf("Now leading %q", auction.Title))
		if err != nil {
			return nil, model.Transaction{}, nil, err
		}
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return nil, model.Transaction{}, nil, err
		}
		return &b, hold, skipped, nil
	}
	return nil, model.Transaction{}, skipped, nil
}

// rankBids orders bids by amount descending, earlier bids first on ties
func rankBids(bids []model.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if !bids[i].Amount.Equal(bids[j].Amount) {
			return bids[i].Amount.GreaterThan(bids[j].Amount)
		}
		return bids[i].Timestamp.Before(bids[j].Timestamp)
	})
}

func withoutBids(history []model.PricePoint, bidIDs map[string]bool) []model.PricePoint {
	out := make([]model.PricePoint, 0, len(history))
	for _, p := range history {
		if p.BidID == "" || !bidIDs[p.BidID] {
			out = append(out, p)
		}
	}
	return out
}

// leaderHold is the amount held for the current leader of auction
func leaderHold(auction model.Auction) decimal.Decimal {
	if !auction.HasWinner() {
		return decimal.Zero
	}
	return auction.CurrentPrice
}
