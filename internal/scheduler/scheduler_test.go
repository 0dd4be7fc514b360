package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	bidding "artx-auction/internal/biddingService"
	model "artx-auction/internal/models"
	"artx-auction/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	repo    *repository.MemoryRepo
	clock   *testClock
	service *bidding.BiddingService
	sched   *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepo()
	clock := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := &fixture{
		repo:    repo,
		clock:   clock,
		service: bidding.NewBiddingService(repo, bidding.WithClock(clock.Now)),
		sched:   New(repo, WithClock(clock.Now)),
	}
	f.account(t, "artist1", model.RoleArtist, 50)
	f.account(t, "buyerA", model.RoleBuyer, 500)
	f.account(t, "buyerB", model.RoleBuyer, 500)
	return f
}

func (f *fixture) account(t *testing.T, id string, role model.Role, balance int64) {
	t.Helper()
	require.NoError(t, f.repo.CreateAccount(context.Background(), model.Account{
		AccountID: id,
		Name:      strings.ToUpper(id[:1]) + id[1:],
		Role:      role,
		Balance:   decimal.NewFromInt(balance),
		CreatedAt: f.clock.Now(),
	}))
}

func (f *fixture) auction(id string, reserve *decimal.Decimal, start, end time.Time, status model.Status) {
	f.repo.AddAuction(model.Auction{
		AuctionID:       id,
		ArtworkID:       "art-" + id,
		Title:           "Artwork " + id,
		ArtistID:        "artist1",
		ArtistName:      "Artist1",
		StartingPrice:   decimal.NewFromInt(100),
		CurrentPrice:    decimal.NewFromInt(100),
		ReservePrice:    reserve,
		MinBidIncrement: decimal.NewFromInt(10),
		StartTime:       start,
		EndTime:         end,
		Status:          status,
		Watchers:        []string{},
		PriceHistory:    []model.PricePoint{{Price: decimal.NewFromInt(100), Timestamp: start}},
		CreatedAt:       start,
	})
}

func (f *fixture) get(t *testing.T, id string) model.Auction {
	t.Helper()
	a, err := f.repo.GetAuction(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (f *fixture) acct(t *testing.T, id string) model.Account {
	t.Helper()
	a, err := f.repo.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func notificationsOfType(t *testing.T, repo *repository.MemoryRepo, userID string, kind model.NotificationType) []model.Notification {
	t.Helper()
	all, err := repo.GetNotifications(context.Background(), userID)
	require.NoError(t, err)
	out := make([]model.Notification, 0)
	for _, n := range all {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

func TestSweep_ReserveNotMet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()
	f.auction("a1", dec(150), now.Add(-time.Hour), now.Add(time.Hour), model.StatusActive)

	_, err := f.service.PlaceBid(ctx, "a1", "buyerB", decimal.NewFromInt(120))
	require.NoError(t, err)
	require.True(t, f.acct(t, "buyerB").HeldAmount.Equal(decimal.NewFromInt(120)))

	f.clock.Advance(2 * time.Hour)
	report, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Ended)
	require.Equal(t, 0, report.Failed)

	a := f.get(t, "a1")
	require.Equal(t, model.StatusEnded, a.Status)
	require.False(t, a.HasWinner())
	require.NotNil(t, a.ReserveMet)
	require.False(t, *a.ReserveMet)

	buyer := f.acct(t, "buyerB")
	require.True(t, buyer.Balance.Equal(decimal.NewFromInt(500)))
	require.True(t, buyer.HeldAmount.IsZero())
	require.True(t, f.acct(t, "artist1").Balance.Equal(decimal.NewFromInt(50)))

	txs, err := f.repo.GetTransactions(ctx, "buyerB")
	require.NoError(t, err)
	for _, tr := range txs {
		require.NotEqual(t, model.TxPurchase, tr.Type)
	}

	ended := notificationsOfType(t, f.repo, "artist1", model.NotifyAuctionEnded)
	require.Len(t, ended, 1)
	require.Contains(t, ended[0].Message, "reserve price was not met")
	require.Len(t, notificationsOfType(t, f.repo, "buyerB", model.NotifyAuctionLost), 1)

	history, err := f.repo.GetHistory(ctx, "artist1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, model.OutcomeReserveNotMet, history[0].Outcome)
}

func TestSweep_SettlesSale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()
	f.auction("a1", dec(100), now.Add(-time.Hour), now.Add(time.Hour), model.StatusActive)

	_, err := f.service.PlaceBid(ctx, "a1", "buyerB", decimal.NewFromInt(120))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	report, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Ended)

	buyer := f.acct(t, "buyerB")
	require.True(t, buyer.Balance.Equal(decimal.NewFromInt(380)), buyer.Balance.String())
	require.True(t, buyer.HeldAmount.IsZero())
	require.True(t, f.acct(t, "artist1").Balance.Equal(decimal.NewFromInt(152)))

	a := f.get(t, "a1")
	require.Equal(t, model.StatusEnded, a.Status)
	require.Equal(t, "buyerB", a.WinnerID)
	require.True(t, *a.ReserveMet)
	require.NotNil(t, a.EndedAt)

	require.Len(t, notificationsOfType(t, f.repo, "buyerB", model.NotifyAuctionWon), 1)
	sold := notificationsOfType(t, f.repo, "artist1", model.NotifyAuctionEnded)
	require.Len(t, sold, 1)
	require.Contains(t, sold[0].Message, "$102.00")

	purchases, err := f.repo.GetHistory(ctx, "buyerB")
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	require.Equal(t, model.HistoryPurchase, purchases[0].Kind)

	sales, err := f.repo.GetHistory(ctx, "artist1")
	require.NoError(t, err)
	require.Len(t, sales, 2)
	require.True(t, sales[0].Commission.Equal(decimal.NewFromInt(18)))
}

func TestSweep_EndedTransitionIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()
	f.auction("a1", nil, now.Add(-time.Hour), now.Add(time.Hour), model.StatusActive)

	_, err := f.service.PlaceBid(ctx, "a1", "buyerB", decimal.NewFromInt(120))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	first, err := f.sched.advance(ctx, "a1")
	require.NoError(t, err)
	require.True(t, first.ended)

	buyerOnce, artistOnce := f.acct(t, "buyerB"), f.acct(t, "artist1")
	txsOnce, err := f.repo.GetTransactions(ctx, "artist1")
	require.NoError(t, err)

	second, err := f.sched.advance(ctx, "a1")
	require.NoError(t, err)
	require.False(t, second.ended)

	// replaying a stale active copy of the auction must hit the idempotency key
	stale := f.get(t, "a1")
	stale.Status = model.StatusActive
	stale.ReserveMet = nil
	f.repo.AddAuction(stale)
	third, err := f.sched.advance(ctx, "a1")
	require.NoError(t, err)
	require.False(t, third.ended)

	require.True(t, f.acct(t, "buyerB").Balance.Equal(buyerOnce.Balance))
	require.True(t, f.acct(t, "buyerB").HeldAmount.Equal(buyerOnce.HeldAmount))
	require.True(t, f.acct(t, "artist1").Balance.Equal(artistOnce.Balance))
	txsTwice, err := f.repo.GetTransactions(ctx, "artist1")
	require.NoError(t, err)
	require.Len(t, txsTwice, len(txsOnce))
	require.Len(t, notificationsOfType(t, f.repo, "buyerB", model.NotifyAuctionWon), 1)
}

func TestSweep_ConcurrentSweepsSettleOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()
	f.auction("a1", nil, now.Add(-time.Hour), now.Add(time.Hour), model.StatusActive)

	_, err := f.service.PlaceBid(ctx, "a1", "buyerA", decimal.NewFromInt(200))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.sched.Sweep(ctx)
		}()
	}
	wg.Wait()

	require.True(t, f.acct(t, "buyerA").Balance.Equal(decimal.NewFromInt(300)))
	require.True(t, f.acct(t, "artist1").Balance.Equal(decimal.NewFromInt(220)))
	require.Len(t, notificationsOfType(t, f.repo, "buyerA", model.NotifyAuctionWon), 1)
}

func TestSweep_FailureIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()

	f.auction("broken", nil, now.Add(-time.Hour), now.Add(time.Minute), model.StatusActive)
	broken := f.get(t, "broken")
	broken.WinnerID, broken.WinnerName = "ghost", "Ghost"
	broken.CurrentPrice = decimal.NewFromInt(120)
	f.repo.AddAuction(broken)

	f.auction("healthy", nil, now.Add(-time.Hour), now.Add(time.Minute), model.StatusActive)

	f.clock.Advance(time.Hour)
	report, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, report.Ended)

	require.Equal(t, model.StatusActive, f.get(t, "broken").Status)
	require.Equal(t, model.StatusEnded, f.get(t, "healthy").Status)

	history, err := f.repo.GetHistory(ctx, "artist1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, model.OutcomeNoBids, history[0].Outcome)
}

func TestSweep_Transitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()

	f.auction("upcoming", nil, now.Add(time.Hour), now.Add(2*time.Hour), model.StatusScheduled)
	f.auction("starting", nil, now.Add(-time.Minute), now.Add(time.Hour), model.StatusScheduled)
	f.auction("missed", nil, now.Add(-2*time.Hour), now.Add(-time.Hour), model.StatusScheduled)

	report, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, report.Scanned)
	require.Equal(t, 2, report.Activated)
	require.Equal(t, 1, report.Ended)

	require.Equal(t, model.StatusScheduled, f.get(t, "upcoming").Status)
	require.Equal(t, model.StatusActive, f.get(t, "starting").Status)
	require.Equal(t, model.StatusEnded, f.get(t, "missed").Status)

	report, err = f.sched.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Activated+report.Ended+report.Failed)
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sched.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
