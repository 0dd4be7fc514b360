package helpers

import (
	"time"

	"artx-auction/internal/auctionstore"
	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

type DepositRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

type CreateAuctionRequest struct {
	ArtworkID       string    `json:"artwork_id"`
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	ImageURL        string    `json:"image_url"`
	StartingPrice   float64   `json:"starting_price" binding:"required,gt=0"`
	ReservePrice    *float64  `json:"reserve_price" binding:"omitempty,gt=0"`
	MinBidIncrement float64   `json:"min_bid_increment" binding:"required,gt=0"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required"`
}

// ToSpec converts the request into an auctionstore.CreateSpec. The artist
// is taken from the authenticated actor, never from the body.
func (r CreateAuctionRequest) ToSpec() (auctionstore.CreateSpec, error) {
	starting, err := Money("starting_price", r.StartingPrice)
	if err != nil {
		return auctionstore.CreateSpec{}, err
	}
	increment, err := Money("min_bid_increment", r.MinBidIncrement)
	if err != nil {
		return auctionstore.CreateSpec{}, err
	}
	spec := auctionstore.CreateSpec{
		ArtworkID:       r.ArtworkID,
		Title:           r.Title,
		Description:     r.Description,
		ImageURL:        r.ImageURL,
		StartingPrice:   starting,
		MinBidIncrement: increment,
		StartTime:       r.StartTime.UTC(),
		EndTime:         r.EndTime.UTC(),
	}
	if r.ReservePrice != nil {
		reserve, err := Money("reserve_price", *r.ReservePrice)
		if err != nil {
			return auctionstore.CreateSpec{}, err
		}
		spec.ReservePrice = &reserve
	}
	return spec, nil
}

type BidResponse struct {
	BidID      string `json:"bid_id"`
	AuctionID  string `json:"auction_id"`
	BidderID   string `json:"bidder_id"`
	BidderName string `json:"bidder_name"`
	Amount     string `json:"amount"`
	CreatedAt  string `json:"created_at"`
}

// NewBidResponse renders a bid with a fixed two-decimal amount
func NewBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:      bid.BidID,
		AuctionID:  bid.AuctionID,
		BidderID:   bid.BidderID,
		BidderName: bid.BidderName,
		Amount:     bid.Amount.StringFixed(2),
		CreatedAt:  bid.Timestamp.UTC().Format(time.RFC3339),
	}
}

type AccountResponse struct {
	AccountID  string `json:"account_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Balance    string `json:"balance"`
	HeldAmount string `json:"held_amount"`
	Available  string `json:"available"`
}

// NewAccountResponse projects the balance fields of an account
func NewAccountResponse(acct model.Account) AccountResponse {
	return AccountResponse{
		AccountID:  acct.AccountID,
		Name:       acct.Name,
		Role:       string(acct.Role),
		Balance:    acct.Balance.StringFixed(2),
		HeldAmount: acct.HeldAmount.StringFixed(2),
		Available:  acct.Available().StringFixed(2),
	}
}

// Money converts a JSON number into a decimal, rejecting sub-cent amounts
func Money(field string, v float64) (decimal.Decimal, error) {
	d := decimal.NewFromFloat(v)
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, biddingerrors.Invalid(field, "must have at most 2 decimal places")
	}
	return d, nil
}
