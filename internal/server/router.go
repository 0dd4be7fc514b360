package server

import (
	handler "artx-auction/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application. Reads of
// auctions are public; everything else needs a bearer token signed with
// jwtSecret.
func SetupRouter(biddingService handler.BiddingServiceInterface, accountService handler.AccountServiceInterface, jwtSecret string) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(biddingService)
	accountHandler := handler.NewAccountHandler(accountService)
	auth := ActorAuth(jwtSecret)

	auctions := router.Group("/auctions")
	{
		auctions.GET("", biddingHandler.ListAuctionsHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetAuctionBidsHandler)
		auctions.POST("/refresh", biddingHandler.RefreshAuctionsHandler)

		auctions.POST("", auth, biddingHandler.CreateAuctionHandler)
		auctions.POST("/:auction_id/bids", auth, biddingHandler.PlaceBidHandler)
		auctions.DELETE("/:auction_id/bids", auth, biddingHandler.WithdrawBidHandler)
		auctions.POST("/:auction_id/watchers", auth, biddingHandler.WatchAuctionHandler)
		auctions.DELETE("/:auction_id/watchers", auth, biddingHandler.UnwatchAuctionHandler)
		auctions.POST("/:auction_id/cancel", auth, biddingHandler.CancelAuctionHandler)
	}

	accounts := router.Group("/accounts", auth)
	{
		accounts.GET("/:account_id", accountHandler.GetAccountHandler)
		accounts.POST("/:account_id/deposits", accountHandler.DepositHandler)
		accounts.GET("/:account_id/transactions", accountHandler.TransactionsHandler)
		accounts.GET("/:account_id/history", accountHandler.HistoryHandler)
	}

	return router
}
