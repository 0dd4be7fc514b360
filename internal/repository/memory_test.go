package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) *MemoryRepo {
	t.Helper()
	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAccount(context.Background(), model.Account{
		AccountID: "user1",
		Name:      "User One",
		Role:      model.RoleBuyer,
		Balance:   decimal.NewFromInt(100),
	}))
	repo.AddAuction(model.Auction{
		AuctionID:     "auction1",
		ArtistID:      "artist1",
		Status:        model.StatusActive,
		StartingPrice: decimal.NewFromInt(10),
		CurrentPrice:  decimal.NewFromInt(10),
		CreatedAt:     time.Now().UTC(),
	})
	return repo
}

func TestMemoryRepo_CommitIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := setupRepo(t)

	err := repo.RunInTx(ctx, func(tx Tx) error {
		acct, err := tx.GetAccount(ctx, "user1")
		if err != nil {
			return err
		}
		acct.HeldAmount = decimal.NewFromInt(40)
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	acct, err := repo.GetAccount(ctx, "user1")
	require.NoError(t, err)
	require.True(t, acct.HeldAmount.IsZero())
	require.Equal(t, int64(1), acct.Version)
}

func TestMemoryRepo_StaleReadConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := setupRepo(t)

	inner := make(chan struct{})
	err := repo.RunInTx(ctx, func(tx Tx) error {
		a, err := tx.GetAuction(ctx, "auction1")
		if err != nil {
			return err
		}

		// a concurrent writer commits between our read and our commit
		go func() {
			defer close(inner)
			_ = repo.RunInTx(ctx, func(tx2 Tx) error {
				other, err := tx2.GetAuction(ctx, "auction1")
				if err != nil {
					return err
				}
				other.TotalBids = 7
				return tx2.SaveAuction(ctx, other)
			})
		}()
		<-inner

		a.TotalBids = 1
		return tx.SaveAuction(ctx, a)
	})
	require.ErrorIs(t, err, biddingerrors.ErrConflict)

	a, err := repo.GetAuction(ctx, "auction1")
	require.NoError(t, err)
	require.Equal(t, 7, a.TotalBids)
	require.Equal(t, int64(2), a.Version)
}

func TestMemoryRepo_RunWithRetryIsLinearizable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := setupRepo(t)
	policy := DefaultRetryPolicy()
	policy.MaxRetries = 100

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = RunWithRetry(ctx, repo, policy, func(tx Tx) error {
				a, err := tx.GetAuction(ctx, "auction1")
				if err != nil {
					return err
				}
				a.TotalBids++
				return tx.SaveAuction(ctx, a)
			})
		}()
	}
	wg.Wait()

	a, err := repo.GetAuction(ctx, "auction1")
	require.NoError(t, err)
	require.Equal(t, 25, a.TotalBids)
}

func TestMemoryRepo_RejectsHoldAboveBalance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := setupRepo(t)

	err := repo.RunInTx(ctx, func(tx Tx) error {
		acct, err := tx.GetAccount(ctx, "user1")
		if err != nil {
			return err
		}
		acct.HeldAmount = decimal.NewFromInt(101)
		return tx.SaveAccount(ctx, acct)
	})
	require.Error(t, err)

	acct, err := repo.GetAccount(ctx, "user1")
	require.NoError(t, err)
	require.True(t, acct.HeldAmount.IsZero())
}

func TestMemoryRepo_SaveAccountRequiresRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := setupRepo(t)
	err := repo.RunInTx(ctx, func(tx Tx) error {
		return tx.SaveAccount(ctx, model.Account{AccountID: "user1", Balance: decimal.NewFromInt(1000)})
	})
	require.Error(t, err)
}

func TestMemoryRepo_KeyedWritesAreDeduplicated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := setupRepo(t)

	write := func() error {
		return repo.RunInTx(ctx, func(tx Tx) error {
			if err := tx.AppendHistory(ctx, model.HistoryRecord{RecordID: "r", Key: "auction1:sale:user1", AccountID: "user1"}); err != nil {
				return err
			}
			return tx.EnqueueNotifications(ctx, model.Notification{NotificationID: "n", Key: "auction1:auction_won:user1", UserID: "user1"})
		})
	}
	require.NoError(t, write())
	require.NoError(t, write())

	history, err := repo.GetHistory(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, history, 1)

	notes, err := repo.GetNotifications(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
}

func TestMemoryRepo_ClaimKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := setupRepo(t)

	claim := func() (bool, error) {
		var claimed bool
		err := repo.RunInTx(ctx, func(tx Tx) error {
			var err error
			claimed, err = tx.ClaimKey(ctx, "auction1:ended")
			if err != nil {
				return err
			}
			// claiming twice inside one transaction reports the key as taken
			again, err := tx.ClaimKey(ctx, "auction1:ended")
			if err != nil {
				return err
			}
			if claimed && again {
				return errors.New("claimed twice")
			}
			return nil
		})
		return claimed, err
	}

	ok, err := claim()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = claim()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryRepo_ListAuctionsFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := setupRepo(t)
	repo.AddAuction(model.Auction{AuctionID: "auction2", ArtistID: "artist2", Status: model.StatusScheduled, CreatedAt: time.Now().UTC().Add(time.Minute)})

	require.NoError(t, repo.RunInTx(ctx, func(tx Tx) error {
		return tx.SaveBid(ctx, model.Bid{BidID: "b1", AuctionID: "auction2", BidderID: "user1", Amount: decimal.NewFromInt(20)})
	}))

	tests := []struct {
		name     string
		filter   AuctionFilter
		expected []string
	}{
		{name: "all", filter: AuctionFilter{}, expected: []string{"auction1", "auction2"}},
		{name: "by_status", filter: AuctionFilter{Status: model.StatusActive}, expected: []string{"auction1"}},
		{name: "by_artist", filter: AuctionFilter{ArtistID: "artist2"}, expected: []string{"auction2"}},
		{name: "by_bidder", filter: AuctionFilter{BidderID: "user1"}, expected: []string{"auction2"}},
		{name: "no_match", filter: AuctionFilter{ArtistID: "nobody"}, expected: []string{}},
	}

	for _, tt := range tests {
		auctions, err := repo.ListAuctions(ctx, tt.filter)
		require.NoError(t, err, tt.name)
		ids := make([]string, 0, len(auctions))
		for _, a := range auctions {
			ids = append(ids, a.AuctionID)
		}
		require.Equal(t, tt.expected, ids, tt.name)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, BackoffFactor: 2}
	require.Equal(t, time.Duration(0), p.Backoff(0))
	require.Equal(t, 10*time.Millisecond, p.Backoff(1))
	require.Equal(t, 20*time.Millisecond, p.Backoff(2))
	require.Equal(t, 50*time.Millisecond, p.Backoff(5))
}

func TestRunWithRetry_StopsOnContext(t *testing.T) {
	t.Parallel()

	repo := setupRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RunWithRetry(ctx, repo, RetryPolicy{MaxRetries: 5, InitialBackoff: time.Second}, func(tx Tx) error {
		calls++
		cancel()
		return biddingerrors.ErrConflict
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
