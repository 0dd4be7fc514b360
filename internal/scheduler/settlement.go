package scheduler

import (
	"context"
	"fmt"
	"time"

	"artx-auction/internal/auctionstore"
	model "artx-auction/internal/models"
	"artx-auction/internal/notify"
	"artx-auction/internal/repository"
	"artx-auction/utils"

	"github.com/shopspring/decimal"
)

// settle closes an active auction. Every record it writes carries a key
// derived from the auction id so that a repeated close cannot duplicate it.
func (s *Scheduler) settle(ctx context.Context, tx repository.Tx, auction model.Auction, now time.Time) error {
	reserveMet := auction.ReservePrice == nil || auction.CurrentPrice.GreaterThanOrEqual(*auction.ReservePrice)
	if auction.HasWinner() && reserveMet {
		return s.settleSale(ctx, tx, auction, now)
	}
	return s.settleUnsold(ctx, tx, auction, now)
}

func (s *Scheduler) settleSale(ctx context.Context, tx repository.Tx, auction model.Auction, now time.Time) error {
	winner, err := tx.GetAccount(ctx, auction.WinnerID)
	if err != nil {
		return err
	}
	artist, err := tx.GetAccount(ctx, auction.ArtistID)
	if err != nil {
		return err
	}

	price := auction.CurrentPrice
	settlement, err := s.ledger.Settle(&winner, &artist, price, s.commissionRate, auction.AuctionID, auction.Title)
	if err != nil {
		return fmt.Errorf("settle auction %s: %w", auction.AuctionID, err)
	}
	records := append(settlement.Transactions,
		s.ledger.Release(&winner, price, auction.AuctionID, fmt.Sprintf("Hold settled for %q", auction.Title)))

	if err := tx.SaveAccount(ctx, winner); err != nil {
		return err
	}
	if err := tx.SaveAccount(ctx, artist); err != nil {
		return err
	}
	if err := tx.AppendTransactions(ctx, records...); err != nil {
		return err
	}

	history := []model.HistoryRecord{
		historyRecord(auction, auction.WinnerID, model.HistoryPurchase, now, func(r *model.HistoryRecord) {
			r.CounterpartyID, r.CounterpartyName = auction.ArtistID, auction.ArtistName
			r.Price = price
		}),
		historyRecord(auction, auction.ArtistID, model.HistorySale, now, func(r *model.HistoryRecord) {
			r.CounterpartyID, r.CounterpartyName = auction.WinnerID, auction.WinnerName
			r.Price, r.Earnings, r.Commission = price, settlement.Earnings, settlement.Commission
		}),
		historyRecord(auction, auction.ArtistID, model.HistoryAuction, now, func(r *model.HistoryRecord) {
			r.CounterpartyID, r.CounterpartyName = auction.WinnerID, auction.WinnerName
			r.Price, r.Outcome = price, model.OutcomeSold
		}),
	}
	if err := tx.AppendHistory(ctx, history...); err != nil {
		return err
	}

	if err := tx.EnqueueNotifications(ctx,
		notify.AuctionWon(auction, now),
		notify.AuctionSold(auction, settlement.Earnings, s.commissionRate, now),
	); err != nil {
		return err
	}

	status, met := model.StatusEnded, true
	if _, err := s.store.UpdateFields(ctx, tx, auction.AuctionID, auctionstore.AuctionPatch{
		Status:     &status,
		ReserveMet: &met,
		EndedAt:    &now,
	}); err != nil {
		return err
	}

	utils.Info("Auction settled", map[string]any{
		"auction_id": auction.AuctionID,
		"winner_id":  auction.WinnerID,
		"price":      price.String(),
		"earnings":   settlement.Earnings.String(),
		"commission": settlement.Commission.String(),
	})
	return nil
}

func (s *Scheduler) settleUnsold(ctx context.Context, tx repository.Tx, auction model.Auction, now time.Time) error {
	notes := make([]model.Notification, 0, 2)
	outcome := model.OutcomeNoBids

	if auction.HasWinner() {
		outcome = model.OutcomeReserveNotMet
		bidder, err := tx.GetAccount(ctx, auction.WinnerID)
		if err != nil {
			return err
		}
		release := s.ledger.Release(&bidder, auction.CurrentPrice, auction.AuctionID,
			fmt.Sprintf("Reserve not met on %q", auction.Title))
		if err := tx.SaveAccount(ctx, bidder); err != nil {
			return err
		}
		if err := tx.AppendTransactions(ctx, release); err != nil {
			return err
		}
		notes = append(notes, notify.ReserveNotMet(auction, auction.WinnerID, now))
	}
	notes = append(notes, notify.AuctionUnsold(auction, auction.HasWinner(), now))

	record := historyRecord(auction, auction.ArtistID, model.HistoryAuction, now, func(r *model.HistoryRecord) {
		r.CounterpartyID, r.CounterpartyName = auction.WinnerID, auction.WinnerName
		r.Price, r.Outcome = auction.CurrentPrice, outcome
	})
	if err := tx.AppendHistory(ctx, record); err != nil {
		return err
	}
	if err := tx.EnqueueNotifications(ctx, notes...); err != nil {
		return err
	}

	status, none, met := model.StatusEnded, "", false
	if _, err := s.store.UpdateFields(ctx, tx, auction.AuctionID, auctionstore.AuctionPatch{
		Status:     &status,
		WinnerID:   &none,
		WinnerName: &none,
		ReserveMet: &met,
		EndedAt:    &now,
	}); err != nil {
		return err
	}

	utils.Info("Auction ended without sale", map[string]any{
		"auction_id": auction.AuctionID,
		"outcome":    outcome,
		"price":      auction.CurrentPrice.String(),
	})
	return nil
}

func historyRecord(auction model.Auction, accountID string, kind model.HistoryKind, now time.Time, fill func(r *model.HistoryRecord)) model.HistoryRecord {
	r := model.HistoryRecord{
		RecordID:   utils.GenerateID(),
		Key:        utils.IdempotencyKey(auction.AuctionID, string(kind), accountID),
		AccountID:  accountID,
		Kind:       kind,
		AuctionID:  auction.AuctionID,
		ArtworkID:  auction.ArtworkID,
		Title:      auction.Title,
		Price:      decimal.Zero,
		Earnings:   decimal.Zero,
		Commission: decimal.Zero,
		CreatedAt:  now,
	}
	fill(&r)
	return r
}
