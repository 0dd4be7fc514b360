package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artx-auction/internal/auctionstore"
	bidding "artx-auction/internal/biddingService"
	"artx-auction/internal/config"
	"artx-auction/internal/ledger"
	model "artx-auction/internal/models"
	"artx-auction/internal/notify"
	"artx-auction/internal/repository"
	"artx-auction/internal/scheduler"
	"artx-auction/internal/server"
	"artx-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.Load()
	utils.SetLevel(cfg.LogLevel)
	if err := cfg.Validate(gin.Mode()); err != nil {
		utils.Fatal("Invalid configuration", map[string]any{"mode": gin.Mode(), "error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := openRepository(ctx, cfg)

	retry := repository.DefaultRetryPolicy()
	retry.MaxRetries = cfg.TxMaxRetries
	retry.AttemptTimeout = cfg.TxTimeout

	accountSvc := ledger.NewService(repo, ledger.New(), retry)

	sched := scheduler.New(repo,
		scheduler.WithCommissionRate(cfg.CommissionRate),
		scheduler.WithRetryPolicy(retry),
	)
	biddingSvc := bidding.NewBiddingService(repo,
		bidding.WithRetryPolicy(retry),
		bidding.WithAuctionFee(cfg.AuctionFee),
		bidding.WithSweeper(sched.Refresh),
	)

	go sched.Run(ctx, cfg.SweepInterval)

	publisher := newPublisher(cfg)
	if closer, ok := publisher.(io.Closer); ok {
		defer closer.Close()
	}
	dispatcher := notify.NewDispatcher(repo, publisher, newClaimer(cfg))
	go dispatcher.Run(ctx, cfg.DispatchInterval)

	if cfg.SeedDemoData {
		seedDemoData(ctx, cfg, accountSvc, biddingSvc)
	}

	router := server.SetupRouter(biddingSvc, accountSvc, cfg.JWTSecret)
	srv := &http.Server{Addr: cfg.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			utils.Error("Server shutdown failed", map[string]any{"error": err.Error()})
		}
	}()

	utils.Info("Starting auction server", map[string]any{
		"port":            cfg.Port,
		"db_driver":       cfg.DBDriver,
		"sweep_interval":  cfg.SweepInterval.String(),
		"commission_rate": cfg.CommissionRate.String(),
	})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		utils.Fatal("Failed to start server", map[string]any{"error": err.Error()})
	}
	utils.Info("Auction server stopped", nil)
}

// openRepository returns the configured store; MySQL is migrated on startup
func openRepository(ctx context.Context, cfg config.Config) repository.AuctionDB {
	if cfg.DBDriver != config.DriverMySQL {
		return repository.NewMemoryRepo()
	}

	db, err := repository.OpenMySQL(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		utils.Fatal("Failed to open MySQL", map[string]any{"host": cfg.DBHost, "error": err.Error()})
	}
	repo := repository.NewMySQLRepo(db)
	if err := repo.Migrate(ctx); err != nil {
		utils.Fatal("Failed to migrate MySQL schema", map[string]any{"error": err.Error()})
	}
	return repo
}

// newPublisher prefers RabbitMQ and falls back to logging notifications
func newPublisher(cfg config.Config) notify.Publisher {
	if cfg.RabbitMQURL == "" {
		return notify.LogPublisher{}
	}
	pub, err := notify.NewAMQPPublisher(cfg.RabbitMQURL)
	if err != nil {
		utils.Warn("RabbitMQ unavailable, logging notifications instead", map[string]any{"error": err.Error()})
		return notify.LogPublisher{}
	}
	return pub
}

func newClaimer(cfg config.Config) notify.Claimer {
	if rdb := config.NewRedisClient(cfg); rdb != nil {
		return notify.NewRedisClaimer(rdb)
	}
	return notify.NewMemoryClaimer()
}

// seedDemoData registers sample accounts and one live auction so the API
// can be exercised right after startup
func seedDemoData(ctx context.Context, cfg config.Config, accounts *ledger.Service, svc *bidding.BiddingService) {
	demo := []model.Account{
		{AccountID: "artist1", Name: "Mira Okafor", Role: model.RoleArtist, Balance: decimal.NewFromInt(100)},
		{AccountID: "buyer1", Name: "Jonas Reyes", Role: model.RoleBuyer, Balance: decimal.NewFromInt(1000)},
		{AccountID: "buyer2", Name: "Ada Lindqvist", Role: model.RoleBuyer, Balance: decimal.NewFromInt(1000)},
		{AccountID: "admin1", Name: "Platform Admin", Role: model.RoleAdmin},
	}
	for _, acct := range demo {
		if _, err := accounts.RegisterAccount(ctx, acct); err != nil {
			utils.Warn("Seed: account not registered", map[string]any{"account_id": acct.AccountID, "error": err.Error()})
			continue
		}
		if gin.Mode() == gin.DebugMode {
			token, err := utils.NewAccessToken(cfg.JWTSecret, acct.AccountID, string(acct.Role), cfg.TokenTTL)
			if err == nil {
				utils.Info("Seed: demo access token", map[string]any{"account_id": acct.AccountID, "token": token})
			}
		}
	}

	now := time.Now().UTC()
	_, err := svc.CreateAuction(ctx, model.Actor{ID: "artist1", Role: model.RoleArtist}, auctionstore.CreateSpec{
		ArtworkID:       "artwork1",
		Title:           "Harbour at Dusk",
		Description:     "Oil on canvas, 60x80cm",
		StartingPrice:   decimal.NewFromInt(100),
		MinBidIncrement: decimal.NewFromInt(10),
		StartTime:       now,
		EndTime:         now.Add(10 * time.Minute),
	})
	if err != nil {
		utils.Warn("Seed: auction not created", map[string]any{"error": err.Error()})
	}
}
