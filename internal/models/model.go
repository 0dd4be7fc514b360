package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the identity role of an account
type Role string

const (
	RoleArtist Role = "artist"
	RoleBuyer  Role = "buyer"
	RoleAdmin  Role = "admin"
	RoleCSR    Role = "csr"
)

// IsElevated reports whether the role may act on auctions it does not own
func (r Role) IsElevated() bool {
	return r == RoleAdmin || r == RoleCSR
}

// Actor is the authenticated caller of an operation
type Actor struct {
	ID   string
	Role Role
}

// Status is the lifecycle state of an auction
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

// IsFinal reports whether no further transition is possible
func (s Status) IsFinal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// Account represents a participant and the funds the engine tracks for it
type Account struct {
	AccountID  string          `json:"account_id"`
	Name       string          `json:"name"`
	Role       Role            `json:"role"`
	Balance    decimal.Decimal `json:"balance"`
	HeldAmount decimal.Decimal `json:"held_amount"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Available returns the spendable part of the balance
func (a Account) Available() decimal.Decimal {
	return a.Balance.Sub(a.HeldAmount)
}

// PricePoint is one entry of an auction's price history.
// The starting entry has an empty BidID.
type PricePoint struct {
	BidID     string          `json:"bid_id,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Auction represents an artwork auction
type Auction struct {
	AuctionID       string           `json:"auction_id"`
	ArtworkID       string           `json:"artwork_id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	ImageURL        string           `json:"image_url"`
	ArtistID        string           `json:"artist_id"`
	ArtistName      string           `json:"artist_name"`
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	CurrentPrice    decimal.Decimal  `json:"current_price"`
	ReservePrice    *decimal.Decimal `json:"reserve_price,omitempty"`
	MinBidIncrement decimal.Decimal  `json:"min_bid_increment"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	Status          Status           `json:"status"`
	WinnerID        string           `json:"winner_id,omitempty"`
	WinnerName      string           `json:"winner_name,omitempty"`
	TotalBids       int              `json:"total_bids"`
	Watchers        []string         `json:"watchers"`
	PriceHistory    []PricePoint     `json:"price_history"`
	ReserveMet      *bool            `json:"reserve_met,omitempty"`
	CancelledAt     *time.Time       `json:"cancelled_at,omitempty"`
	CancelledBy     string           `json:"cancelled_by,omitempty"`
	EndedAt         *time.Time       `json:"ended_at,omitempty"`
	Version         int64            `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
}

// HasWinner reports whether a leading bidder exists
func (a Auction) HasWinner() bool {
	return a.WinnerID != ""
}

// IsWatchedBy reports whether accountID is in the watcher set
func (a Auction) IsWatchedBy(accountID string) bool {
	for _, w := range a.Watchers {
		if w == accountID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices or pointers with a
func (a Auction) Clone() Auction {
	c := a
	c.Watchers = append([]string(nil), a.Watchers...)
	c.PriceHistory = append([]PricePoint(nil), a.PriceHistory...)
	if a.ReservePrice != nil {
		r := *a.ReservePrice
		c.ReservePrice = &r
	}
	if a.ReserveMet != nil {
		m := *a.ReserveMet
		c.ReserveMet = &m
	}
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		c.CancelledAt = &t
	}
	if a.EndedAt != nil {
		t := *a.EndedAt
		c.EndedAt = &t
	}
	return c
}

// Bid represents an account's bid on an auction
type Bid struct {
	BidID      string          `json:"bid_id"`
	AuctionID  string          `json:"auction_id"`
	BidderID   string          `json:"bidder_id"`
	BidderName string          `json:"bidder_name"`
	Amount     decimal.Decimal `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`
	Withdrawn  bool            `json:"withdrawn"`
}

// TransactionType classifies a ledger movement
type TransactionType string

const (
	TxDeposit     TransactionType = "deposit"
	TxHold        TransactionType = "hold"
	TxRelease     TransactionType = "release"
	TxPurchase    TransactionType = "purchase"
	TxAuctionSale TransactionType = "auction_sale"
	TxAuctionFee  TransactionType = "auction_fee"
)

// Transaction is an immutable ledger record. Amount is signed from the
// account's point of view.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	AuctionID     string          `json:"auction_id,omitempty"`
	Commission    decimal.Decimal `json:"commission"`
	CreatedAt     time.Time       `json:"created_at"`
}

// HistoryKind classifies an account history record
type HistoryKind string

const (
	HistoryPurchase HistoryKind = "purchase"
	HistorySale     HistoryKind = "sale"
	HistoryAuction  HistoryKind = "auction"
)

// Outcome values recorded on auction history
const (
	OutcomeSold          = "sold"
	OutcomeReserveNotMet = "reserve_not_met"
	OutcomeNoBids        = "no_bids"
)

// HistoryRecord is an append-only entry of an account's purchase, sale or
// auction history
type HistoryRecord struct {
	RecordID         string          `json:"record_id"`
	Key              string          `json:"-"`
	AccountID        string          `json:"account_id"`
	Kind             HistoryKind     `json:"kind"`
	AuctionID        string          `json:"auction_id"`
	ArtworkID        string          `json:"artwork_id"`
	Title            string          `json:"title"`
	CounterpartyID   string          `json:"counterparty_id,omitempty"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
	Price            decimal.Decimal `json:"price"`
	Earnings         decimal.Decimal `json:"earnings"`
	Commission       decimal.Decimal `json:"commission"`
	Outcome          string          `json:"outcome,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NotificationType is the kind of event delivered to an account
type NotificationType string

const (
	NotifyOutbid           NotificationType = "outbid"
	NotifyNewBid           NotificationType = "new_bid"
	NotifyNowWinning       NotificationType = "now_winning"
	NotifyAuctionWon       NotificationType = "auction_won"
	NotifyAuctionLost      NotificationType = "auction_lost"
	NotifyAuctionEnded     NotificationType = "auction_ended"
	NotifyAuctionCancelled NotificationType = "auction_cancelled"
	NotifyBidWithdrawn     NotificationType = "bid_withdrawn"
)

// Notification is an event addressed to one account. Key deduplicates
// repeated emission of the same event.
type Notification struct {
	NotificationID string           `json:"notification_id"`
	Key            string           `json:"key"`
	UserID         string           `json:"user_id"`
	AuctionID      string           `json:"auction_id"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	CreatedAt      time.Time        `json:"created_at"`
	DispatchedAt   *time.Time       `json:"dispatched_at,omitempty"`
}
