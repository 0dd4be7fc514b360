package bidding

import (
	"context"
	"errors"
	"fmt"

	"artx-auction/internal/auctionstore"
	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"
	"artx-auction/internal/notify"
	"artx-auction/internal/repository"
	"artx-auction/utils"
)

// CreateAuction charges the hosting fee to the artist and creates the auction
func (s *BiddingService) CreateAuction(ctx context.Context, actor model.Actor, spec auctionstore.CreateSpec) (model.Auction, error) {
	if actor.Role != model.RoleArtist {
		return model.Auction{}, fmt.Errorf("service: %w", biddingerrors.Unauthorized(actor.ID, "Only artists can create auctions"))
	}
	spec.ArtistID = actor.ID
	if err := spec.Validate(); err != nil {
		return model.Auction{}, fmt.Errorf("service: %w", err)
	}

	var created model.Auction
	err := repository.RunWithRetry(ctx, s.repo, s.retry, func(tx repository.Tx) error {
		now := s.now()

		artist, err := storedActor(ctx, tx, actor)
		if err != nil {
			return err
		}
		if spec.ArtistName == "" {
			spec.ArtistName = artist.Name
		}

		auction, err := s.store.Create(ctx, tx, spec, now)
		if err != nil {
			return err
		}

		records := make([]model.Transaction, 0, 1)
		if s.auctionFee.IsPositive() {
			fee, err := s.ledger.Charge(&artist, s.auctionFee, model.TxAuctionFee, auction.AuctionID,
				fmt.Sprintf("Auction hosting fee for %q", spec.Title))
			if err != nil {
				return err
			}
			records = append(records, fee)
			if err := tx.SaveAccount(ctx, artist); err != nil {
				return err
			}
		}
		if err := tx.AppendTransactions(ctx, records...); err != nil {
			return err
		}
		created = auction
		return nil
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction for artist %s: %w", actor.ID, err)
	}

	utils.Info("Auction created", map[string]any{
		"auction_id": created.AuctionID,
		"artist_id":  actor.ID,
		"status":     created.Status,
		"fee":        s.auctionFee.String(),
	})
	return created, nil
}

// CancelAuction cancels an auction that has not ended, releases the
// leader's hold and notifies bidders and watchers
func (s *BiddingService) CancelAuction(ctx context.Context, auctionID string, actor model.Actor) (model.Auction, error) {
	if auctionID == "" || actor.ID == "" {
		return model.Auction{}, fmt.Errorf("service: %w", biddingerrors.Invalid("auction", "missing auction or actor id"))
	}

	var cancelled model.Auction
	err := repository.RunWithRetry(ctx, s.repo, s.retry, func(tx repository.Tx) error {
		a, err := s.cancelAuctionTx(ctx, tx, auctionID, actor)
		cancelled = a
		return err
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, err)
	}

	utils.Info("Auction cancelled", map[string]any{
		"auction_id": auctionID,
		"actor_id":   actor.ID,
		"actor_role": actor.Role,
	})
	return cancelled, nil
}

func (s *BiddingService) cancelAuctionTx(ctx context.Context, tx repository.Tx, auctionID string, actor model.Actor) (model.Auction, error) {
	now := s.now()

	auction, err := s.store.Get(ctx, tx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	if _, err := storedActor(ctx, tx, actor); err != nil {
		return model.Auction{}, err
	}
	elevated := actor.Role.IsElevated()
	if auction.ArtistID != actor.ID && !elevated {
		return model.Auction{}, biddingerrors.Unauthorized(actor.ID, "Only the auction owner or admins can cancel")
	}
	switch auction.Status {
	case model.StatusEnded:
		return model.Auction{}, biddingerrors.InvalidState(auctionID, string(auction.Status), "Cannot cancel an ended auction")
	case model.StatusCancelled:
		return model.Auction{}, biddingerrors.InvalidState(auctionID, string(auction.Status), "Auction is already cancelled")
	}

	records := make([]model.Transaction, 0, 1)
	if auction.HasWinner() {
		leader, err := tx.GetAccount(ctx, auction.WinnerID)
		if err != nil {
			return model.Auction{}, err
		}
		records = append(records, s.ledger.Release(&leader, leaderHold(auction), auctionID, fmt.Sprintf("Auction cancelled: %q", auction.Title)))
		if err := tx.SaveAccount(ctx, leader); err != nil {
			return model.Auction{}, err
		}
	}

	status := model.StatusCancelled
	updated, err := s.store.UpdateFields(ctx, tx, auctionID, auctionstore.AuctionPatch{
		Status:      &status,
		CancelledAt: &now,
		CancelledBy: &actor.ID,
	})
	if err != nil {
		return model.Auction{}, err
	}

	bids, err := tx.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	notes := make([]model.Notification, 0, len(bids)+len(updated.Watchers)+1)
	seen := make(map[string]bool)
	for _, b := range bids {
		if b.Withdrawn || seen[b.BidderID] {
			continue
		}
		seen[b.BidderID] = true
		notes = append(notes, notify.CancelledForBidder(updated, b.BidderID, elevated, now))
	}
	for _, w := range updated.Watchers {
		if seen[w] {
			continue
		}
		seen[w] = true
		notes = append(notes, notify.CancelledForWatcher(updated, w, elevated, now))
	}
	if elevated {
		notes = append(notes, notify.CancelledForArtist(updated, now))
	}

	if err := tx.AppendTransactions(ctx, records...); err != nil {
		return model.Auction{}, err
	}
	if err := tx.EnqueueNotifications(ctx, notes...); err != nil {
		return model.Auction{}, err
	}
	return updated, nil
}

// WatchAuction adds accountID to the auction's watchers
func (s *BiddingService) WatchAuction(ctx context.Context, auctionID, accountID string) (model.Auction, error) {
	var updated model.Auction
	err := repository.RunWithRetry(ctx, s.repo, s.retry, func(tx repository.Tx) error {
		a, err := s.store.AddWatcher(ctx, tx, auctionID, accountID)
		updated = a
		return err
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to watch auction %s: %w", auctionID, err)
	}
	return updated, nil
}

// UnwatchAuction removes accountID from the auction's watchers
func (s *BiddingService) UnwatchAuction(ctx context.Context, auctionID, accountID string) (model.Auction, error) {
	var updated model.Auction
	err := repository.RunWithRetry(ctx, s.repo, s.retry, func(tx repository.Tx) error {
		a, err := s.store.RemoveWatcher(ctx, tx, auctionID, accountID)
		updated = a
		return err
	})
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to unwatch auction %s: %w", auctionID, err)
	}
	return updated, nil
}

// storedActor loads the actor's account and rejects a token whose role claim
// no longer matches the stored role
func storedActor(ctx context.Context, tx repository.Tx, actor model.Actor) (model.Account, error) {
	account, err := tx.GetAccount(ctx, actor.ID)
	if errors.Is(err, biddingerrors.ErrNotFound) {
		return model.Account{}, biddingerrors.Unauthorized(actor.ID, "Unknown account")
	}
	if err != nil {
		return model.Account{}, err
	}
	if account.Role != actor.Role {
		utils.Warn("Role claim does not match stored account", map[string]any{
			"actor_id":    actor.ID,
			"claimed":     actor.Role,
			"stored_role": account.Role,
		})
		return model.Account{}, biddingerrors.Unauthorized(actor.ID, "Role does not match account")
	}
	return account, nil
}
