// Package notify builds auction notifications, stores them through the
// repository outbox and delivers them to a publisher.
package notify

import (
	"fmt"
	"time"

	model "artx-auction/internal/models"
	"artx-auction/utils"

	"github.com/shopspring/decimal"
)

func dollars(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func build(kind model.NotificationType, userID string, auction model.Auction, title, message string, at time.Time, keyParts ...string) model.Notification {
	parts := append([]string{auction.AuctionID, string(kind), userID}, keyParts...)
	return model.Notification{
		NotificationID: utils.GenerateID(),
		Key:            utils.IdempotencyKey(parts...),
		UserID:         userID,
		AuctionID:      auction.AuctionID,
		Type:           kind,
		Title:          title,
		Message:        message,
		CreatedAt:      at,
	}
}

// Outbid tells a previous leader that bid replaced them
func Outbid(auction model.Auction, previousLeaderID string, bid model.Bid, at time.Time) model.Notification {
	return build(model.NotifyOutbid, previousLeaderID, auction,
		"You've been outbid!",
		fmt.Sprintf("Someone placed a higher bid of %s on %q", dollars(bid.Amount), auction.Title),
		at, bid.BidID)
}

// NewBidForArtist tells the auction owner about an accepted bid
func NewBidForArtist(auction model.Auction, bid model.Bid, at time.Time) model.Notification {
	return build(model.NotifyNewBid, auction.ArtistID, auction,
		"New bid on your auction!",
		fmt.Sprintf("%s placed a bid of %s on %q", bid.BidderName, dollars(bid.Amount), auction.Title),
		at, bid.BidID)
}

// NewBidForWatcher tells a watcher about an accepted bid
func NewBidForWatcher(auction model.Auction, watcherID string, bid model.Bid, at time.Time) model.Notification {
	return build(model.NotifyNewBid, watcherID, auction,
		"New bid on watched auction",
		fmt.Sprintf("New bid of %s on %q", dollars(bid.Amount), auction.Title),
		at, bid.BidID)
}

// NowWinning tells the bidder promoted after a withdrawal that they lead
func NowWinning(auction model.Auction, leading model.Bid, withdrawn model.Bid, at time.Time) model.Notification {
	return build(model.NotifyNowWinning, leading.BidderID, auction,
		"You're now the highest bidder!",
		fmt.Sprintf("The previous high bidder withdrew. You're now winning %q with %s!", auction.Title, dollars(leading.Amount)),
		at, withdrawn.BidID)
}

// BidWithdrawn tells the auction owner that the leader withdrew
func BidWithdrawn(auction model.Auction, withdrawn model.Bid, at time.Time) model.Notification {
	return build(model.NotifyBidWithdrawn, auction.ArtistID, auction,
		"Bid withdrawn from your auction",
		fmt.Sprintf("%s withdrew their bid of %s from %q.", withdrawn.BidderName, dollars(withdrawn.Amount), auction.Title),
		at, withdrawn.BidID)
}

// AuctionWon tells the winner that they were charged
func AuctionWon(auction model.Auction, at time.Time) model.Notification {
	return build(model.NotifyAuctionWon, auction.WinnerID, auction,
		"Congratulations! You won the auction!",
		fmt.Sprintf("You won %q with a bid of %s. Your account has been charged.", auction.Title, dollars(auction.CurrentPrice)),
		at)
}

// AuctionSold tells the artist about a settled sale
func AuctionSold(auction model.Auction, earnings, commissionRate decimal.Decimal, at time.Time) model.Notification {
	return build(model.NotifyAuctionEnded, auction.ArtistID, auction,
		"Your auction has ended",
		fmt.Sprintf("%q sold for %s to %s. You earned %s (after %s%% commission).",
			auction.Title, dollars(auction.CurrentPrice), auction.WinnerName, dollars(earnings),
			commissionRate.Mul(decimal.NewFromInt(100)).String()),
		at)
}

// ReserveNotMet tells the highest bidder that no sale happened and the hold was released
func ReserveNotMet(auction model.Auction, bidderID string, at time.Time) model.Notification {
	return build(model.NotifyAuctionLost, bidderID, auction,
		"Auction ended - Reserve not met",
		fmt.Sprintf("The auction %q ended but the reserve price was not met. Your bid of %s was not accepted and your funds have been released.",
			auction.Title, dollars(auction.CurrentPrice)),
		at)
}

// AuctionUnsold tells the artist that the auction closed without a sale
func AuctionUnsold(auction model.Auction, hadBids bool, at time.Time) model.Notification {
	message := fmt.Sprintf("%q ended with no bids.", auction.Title)
	if hadBids {
		message = fmt.Sprintf("%q ended but reserve price was not met. Highest bid was %s.", auction.Title, dollars(auction.CurrentPrice))
	}
	return build(model.NotifyAuctionEnded, auction.ArtistID, auction, "Your auction has ended", message, at)
}

func cancelledBy(elevated bool) string {
	if elevated {
		return "an administrator"
	}
	return "the artist"
}

// CancelledForBidder tells a bidder that the auction was cancelled
func CancelledForBidder(auction model.Auction, bidderID string, elevated bool, at time.Time) model.Notification {
	return build(model.NotifyAuctionCancelled, bidderID, auction,
		"Auction Cancelled",
		fmt.Sprintf("The auction %q has been cancelled by %s. Your held funds have been released.", auction.Title, cancelledBy(elevated)),
		at)
}

// CancelledForWatcher tells a watcher that the auction was cancelled
func CancelledForWatcher(auction model.Auction, watcherID string, elevated bool, at time.Time) model.Notification {
	return build(model.NotifyAuctionCancelled, watcherID, auction,
		"Watched Auction Cancelled",
		fmt.Sprintf("The auction %q you were watching has been cancelled by %s.", auction.Title, cancelledBy(elevated)),
		at)
}

// CancelledForArtist tells the artist that staff cancelled their auction
func CancelledForArtist(auction model.Auction, at time.Time) model.Notification {
	return build(model.NotifyAuctionCancelled, auction.ArtistID, auction,
		"Your Auction Was Cancelled",
		fmt.Sprintf("Your auction %q has been cancelled by an administrator. Please contact support for more information.", auction.Title),
		at)
}
