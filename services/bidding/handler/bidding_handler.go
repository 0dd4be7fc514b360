package handler

//go:generate mockgen -destination=mock_bidding_handler.go -package=handler artx-auction/services/bidding/handler BiddingServiceInterface,AccountServiceInterface

import (
	"context"
	"net/http"

	"artx-auction/internal/auctionstore"
	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"
	"artx-auction/internal/repository"
	"artx-auction/services/bidding/helpers"
	"artx-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (model.Bid, error)
	WithdrawBid(ctx context.Context, auctionID, bidderID string) (model.Auction, error)
	CreateAuction(ctx context.Context, actor model.Actor, spec auctionstore.CreateSpec) (model.Auction, error)
	CancelAuction(ctx context.Context, auctionID string, actor model.Actor) (model.Auction, error)
	WatchAuction(ctx context.Context, auctionID, accountID string) (model.Auction, error)
	UnwatchAuction(ctx context.Context, auctionID, accountID string) (model.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	GetAuctionBids(ctx context.Context, auctionID string) ([]model.Bid, error)
	ListAuctions(ctx context.Context, filter repository.AuctionFilter) ([]model.Auction, error)
	RefreshAuctions(ctx context.Context) ([]model.Auction, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// requireActor aborts with 401 when the auth middleware did not run
func requireActor(c *gin.Context, handlerName string) (model.Actor, bool) {
	actor, ok := helpers.Actor(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, biddingerrors.ErrAuthorization, "authentication required")
		utils.Warn(handlerName+": missing actor", map[string]any{"path": c.Request.URL.Path})
		return model.Actor{}, false
	}
	return actor, true
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	actor, ok := requireActor(c, "PlaceBidHandler")
	if !ok {
		return
	}
	auctionID := c.Param("auction_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	amount, err := helpers.Money("amount", req.Amount)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{"auction_id": auctionID, "amount": req.Amount})
		return
	}

	bid, err := h.service.PlaceBid(c.Request.Context(), auctionID, actor.ID, amount)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"bidder_id":  actor.ID,
			"amount":     req.Amount,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(bid), "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount.String(),
	})
}

// WithdrawBidHandler handles DELETE /auctions/:auction_id/bids
func (h *BiddingHandler) WithdrawBidHandler(c *gin.Context) {
	actor, ok := requireActor(c, "WithdrawBidHandler")
	if !ok {
		return
	}
	auctionID := c.Param("auction_id")

	auction, err := h.service.WithdrawBid(c.Request.Context(), auctionID, actor.ID)
	if err != nil {
		helpers.RespondError(c, "WithdrawBidHandler", err, map[string]any{"auction_id": auctionID, "bidder_id": actor.ID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "bid withdrawn successfully")
	helpers.LogSuccess("WithdrawBidHandler", "bid withdrawn successfully", map[string]any{
		"auction_id":    auctionID,
		"bidder_id":     actor.ID,
		"new_winner_id": auction.WinnerID,
	})
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	actor, ok := requireActor(c, "CreateAuctionHandler")
	if !ok {
		return
	}

	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	spec, err := req.ToSpec()
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"artist_id": actor.ID, "title": req.Title})
		return
	}

	auction, err := h.service.CreateAuction(c.Request.Context(), actor, spec)
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"artist_id": actor.ID, "title": req.Title})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.AuctionID,
		"artist_id":  actor.ID,
		"status":     auction.Status,
	})
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *BiddingHandler) CancelAuctionHandler(c *gin.Context) {
	actor, ok := requireActor(c, "CancelAuctionHandler")
	if !ok {
		return
	}
	auctionID := c.Param("auction_id")

	auction, err := h.service.CancelAuction(c.Request.Context(), auctionID, actor)
	if err != nil {
		helpers.RespondError(c, "CancelAuctionHandler", err, map[string]any{"auction_id": auctionID, "actor_id": actor.ID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction cancelled successfully")
	helpers.LogSuccess("CancelAuctionHandler", "auction cancelled successfully", map[string]any{
		"auction_id": auctionID,
		"actor_id":   actor.ID,
		"role":       actor.Role,
	})
}

// WatchAuctionHandler handles POST /auctions/:auction_id/watchers
func (h *BiddingHandler) WatchAuctionHandler(c *gin.Context) {
	h.toggleWatch(c, "WatchAuctionHandler", h.service.WatchAuction, "auction watched")
}

// UnwatchAuctionHandler handles DELETE /auctions/:auction_id/watchers
func (h *BiddingHandler) UnwatchAuctionHandler(c *gin.Context) {
	h.toggleWatch(c, "UnwatchAuctionHandler", h.service.UnwatchAuction, "auction unwatched")
}

func (h *BiddingHandler) toggleWatch(c *gin.Context, handlerName string, op func(context.Context, string, string) (model.Auction, error), message string) {
	actor, ok := requireActor(c, handlerName)
	if !ok {
		return
	}
	auctionID := c.Param("auction_id")

	auction, err := op(c.Request.Context(), auctionID, actor.ID)
	if err != nil {
		helpers.RespondError(c, handlerName, err, map[string]any{"auction_id": auctionID, "account_id": actor.ID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, message)
	helpers.LogSuccess(handlerName, message, map[string]any{
		"auction_id":     auctionID,
		"account_id":     actor.ID,
		"watchers_count": len(auction.Watchers),
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction retrieved successfully")
}

// GetAuctionBidsHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetAuctionBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetAuctionBids(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionBidsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, helpers.NewBidResponse(b))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetAuctionBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(resp),
	})
}

// ListAuctionsHandler handles GET /auctions?status=&artist_id=&bidder_id=
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	filter := repository.AuctionFilter{
		Status:   model.Status(c.Query("status")),
		ArtistID: c.Query("artist_id"),
		BidderID: c.Query("bidder_id"),
	}
	switch filter.Status {
	case "", model.StatusScheduled, model.StatusActive, model.StatusEnded, model.StatusCancelled:
	default:
		helpers.RespondError(c, "ListAuctionsHandler",
			biddingerrors.Invalid("status", "must be one of scheduled, active, ended, cancelled"),
			map[string]any{"status": filter.Status})
		return
	}

	auctions, err := h.service.ListAuctions(c.Request.Context(), filter)
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, nil)
		return
	}
	if auctions == nil {
		auctions = []model.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"status":    filter.Status,
		"artist_id": filter.ArtistID,
		"bidder_id": filter.BidderID,
		"count":     len(auctions),
	})
}

// RefreshAuctionsHandler handles POST /auctions/refresh
func (h *BiddingHandler) RefreshAuctionsHandler(c *gin.Context) {
	auctions, err := h.service.RefreshAuctions(c.Request.Context())
	if err != nil {
		helpers.RespondError(c, "RefreshAuctionsHandler", err, nil)
		return
	}
	if auctions == nil {
		auctions = []model.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions refreshed successfully")
	helpers.LogSuccess("RefreshAuctionsHandler", "auctions refreshed successfully", map[string]any{"count": len(auctions)})
}
