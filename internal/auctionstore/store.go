// Package auctionstore creates, reads and updates auction records inside
// repository transactions. It applies no bidding rules.
package auctionstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"
	"artx-auction/internal/repository"
	"artx-auction/utils"

	"github.com/shopspring/decimal"
)

// CreateSpec is the caller-supplied part of a new auction
type CreateSpec struct {
	ArtworkID       string
	Title           string
	Description     string
	ImageURL        string
	ArtistID        string
	ArtistName      string
	StartingPrice   decimal.Decimal
	ReservePrice    *decimal.Decimal
	MinBidIncrement decimal.Decimal
	StartTime       time.Time
	EndTime         time.Time
}

// Validate checks prices and timing
func (s CreateSpec) Validate() error {
	if strings.TrimSpace(s.ArtistID) == "" {
		return biddingerrors.Invalid("artist_id", "must not be empty")
	}
	if strings.TrimSpace(s.Title) == "" {
		return biddingerrors.Invalid("title", "must not be empty")
	}
	if !s.StartingPrice.IsPositive() {
		return biddingerrors.Invalid("starting_price", "must be greater than zero")
	}
	if !s.MinBidIncrement.IsPositive() {
		return biddingerrors.Invalid("min_bid_increment", "must be greater than zero")
	}
	if s.ReservePrice != nil && s.ReservePrice.LessThan(s.StartingPrice) {
		return biddingerrors.Invalid("reserve_price", "must not be below the starting price")
	}
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return biddingerrors.Invalid("start_time", "start and end time are required")
	}
	if !s.EndTime.After(s.StartTime) {
		return biddingerrors.Invalid("end_time", "must be after the start time")
	}
	return nil
}

// AuctionPatch is a partial update. Nil fields are left unchanged.
type AuctionPatch struct {
	Title        *string
	Description  *string
	ImageURL     *string
	CurrentPrice *decimal.Decimal
	Status       *model.Status
	WinnerID     *string
	WinnerName   *string
	TotalBids    *int
	PriceHistory []model.PricePoint
	ReserveMet   *bool
	CancelledAt  *time.Time
	CancelledBy  *string
	EndedAt      *time.Time
}

// Apply merges the patch into auction
func (p AuctionPatch) Apply(auction *model.Auction) {
	if p.Title != nil {
		auction.Title = *p.Title
	}
	if p.Description != nil {
		auction.Description = *p.Description
	}
	if p.ImageURL != nil {
		auction.ImageURL = *p.ImageURL
	}
	if p.CurrentPrice != nil {
		auction.CurrentPrice = *p.CurrentPrice
	}
	if p.Status != nil {
		auction.Status = *p.Status
	}
	if p.WinnerID != nil {
		auction.WinnerID = *p.WinnerID
	}
	if p.WinnerName != nil {
		auction.WinnerName = *p.WinnerName
	}
	if p.TotalBids != nil {
		auction.TotalBids = *p.TotalBids
	}
	if p.PriceHistory != nil {
		auction.PriceHistory = append([]model.PricePoint(nil), p.PriceHistory...)
	}
	if p.ReserveMet != nil {
		met := *p.ReserveMet
		auction.ReserveMet = &met
	}
	if p.CancelledAt != nil {
		at := *p.CancelledAt
		auction.CancelledAt = &at
	}
	if p.CancelledBy != nil {
		auction.CancelledBy = *p.CancelledBy
	}
	if p.EndedAt != nil {
		at := *p.EndedAt
		auction.EndedAt = &at
	}
}

// Store is the auction record store
type Store struct {
	repo repository.AuctionDB
}

// New creates a Store reading committed state from repo
func New(repo repository.AuctionDB) *Store {
	return &Store{repo: repo}
}

// Create validates spec and stages a new auction in tx
func (s *Store) Create(ctx context.Context, tx repository.Tx, spec CreateSpec, now time.Time) (model.Auction, error) {
	if err := spec.Validate(); err != nil {
		return model.Auction{}, err
	}

	status := model.StatusScheduled
	if !spec.StartTime.After(now) {
		status = model.StatusActive
	}

	auction := model.Auction{
		AuctionID:       utils.GenerateID(),
		ArtworkID:       spec.ArtworkID,
		Title:           spec.Title,
		Description:     spec.Description,
		ImageURL:        spec.ImageURL,
		ArtistID:        spec.ArtistID,
		ArtistName:      spec.ArtistName,
		StartingPrice:   spec.StartingPrice,
		CurrentPrice:    spec.StartingPrice,
		MinBidIncrement: spec.MinBidIncrement,
		StartTime:       spec.StartTime.UTC(),
		EndTime:         spec.EndTime.UTC(),
		Status:          status,
		TotalBids:       0,
		Watchers:        []string{},
		PriceHistory:    []model.PricePoint{{Price: spec.StartingPrice, Timestamp: now}},
		CreatedAt:       now,
	}
	if spec.ReservePrice != nil {
		reserve := *spec.ReservePrice
		auction.ReservePrice = &reserve
	}

	if err := tx.SaveAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("store: failed to create auction: %w", err)
	}
	return auction, nil
}

// Get reads an auction inside tx
func (s *Store) Get(ctx context.Context, tx repository.Tx, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, biddingerrors.Invalid("auction_id", "must not be empty")
	}
	return tx.GetAuction(ctx, auctionID)
}

// List returns committed auctions matching filter
func (s *Store) List(ctx context.Context, filter repository.AuctionFilter) ([]model.Auction, error) {
	auctions, err := s.repo.ListAuctions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// UpdateFields merges patch into the auction and stages the result
func (s *Store) UpdateFields(ctx context.Context, tx repository.Tx, auctionID string, patch AuctionPatch) (model.Auction, error) {
	auction, err := s.Get(ctx, tx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	patch.Apply(&auction)
	if err := tx.SaveAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("store: failed to update auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// AddWatcher adds accountID to the watcher set. Adding an existing watcher is a no-op.
func (s *Store) AddWatcher(ctx context.Context, tx repository.Tx, auctionID, accountID string) (model.Auction, error) {
	if accountID == "" {
		return model.Auction{}, biddingerrors.Invalid("account_id", "must not be empty")
	}
	auction, err := s.Get(ctx, tx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	if auction.IsWatchedBy(accountID) {
		return auction, nil
	}
	auction.Watchers = append(auction.Watchers, accountID)
	if err := tx.SaveAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("store: failed to add watcher to auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// RemoveWatcher removes accountID from the watcher set. Removing a non-watcher is a no-op.
func (s *Store) RemoveWatcher(ctx context.Context, tx repository.Tx, auctionID, accountID string) (model.Auction, error) {
	if accountID == "" {
		return model.Auction{}, biddingerrors.Invalid("account_id", "must not be empty")
	}
	auction, err := s.Get(ctx, tx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	if !auction.IsWatchedBy(accountID) {
		return auction, nil
	}
	kept := make([]string, 0, len(auction.Watchers))
	for _, w := range auction.Watchers {
		if w != accountID {
			kept = append(kept, w)
		}
	}
	auction.Watchers = kept
	if err := tx.SaveAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("store: failed to remove watcher from auction %s: %w", auctionID, err)
	}
	return auction, nil
}
