package repository

//go:generate mockgen -destination=mock_repository.go -package=repository artx-auction/internal/repository AuctionDB

import (
	"context"
	"time"

	model "artx-auction/internal/models"
)

// Tx is the unit of work passed to AuctionDB.RunInTx. Reads see the
// transaction's own writes; nothing becomes visible to other callers until
// the callback returns nil and the commit succeeds.
type Tx interface {
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	SaveAuction(ctx context.Context, auction model.Auction) error
	GetAccount(ctx context.Context, accountID string) (model.Account, error)
	SaveAccount(ctx context.Context, account model.Account) error
	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	SaveBid(ctx context.Context, bid model.Bid) error
	AppendTransactions(ctx context.Context, txs ...model.Transaction) error
	// AppendHistory ignores records whose Key was already stored
	AppendHistory(ctx context.Context, records ...model.HistoryRecord) error
	// EnqueueNotifications ignores notifications whose Key was already stored
	EnqueueNotifications(ctx context.Context, notes ...model.Notification) error
	// ClaimKey records an idempotency key and reports false if it already existed
	ClaimKey(ctx context.Context, key string) (bool, error)
}

// AuctionFilter narrows ListAuctions. Empty fields match everything.
type AuctionFilter struct {
	Status   model.Status
	ArtistID string
	BidderID string
}

// Matches reports whether auction satisfies the status and artist criteria.
// BidderID needs the bid store and is evaluated by the implementations.
func (f AuctionFilter) Matches(auction model.Auction) bool {
	if f.Status != "" && auction.Status != f.Status {
		return false
	}
	if f.ArtistID != "" && auction.ArtistID != f.ArtistID {
		return false
	}
	return true
}

// AuctionDB defines the storage interface for auctions, accounts, bids,
// the ledger journal, account history and the notification outbox
type AuctionDB interface {
	// RunInTx runs fn in one serializable transaction. A commit that loses a
	// race with a concurrent writer fails with biddingerrors.ErrConflict.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, filter AuctionFilter) ([]model.Auction, error)
	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)

	CreateAccount(ctx context.Context, account model.Account) error
	GetAccount(ctx context.Context, accountID string) (model.Account, error)
	GetTransactions(ctx context.Context, accountID string) ([]model.Transaction, error)
	GetHistory(ctx context.Context, accountID string) ([]model.HistoryRecord, error)

	PendingNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	GetNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	MarkDispatched(ctx context.Context, notificationID string, at time.Time) error
}
