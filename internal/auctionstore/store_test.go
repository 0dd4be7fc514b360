package auctionstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"
	"artx-auction/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func validSpec(now time.Time) CreateSpec {
	reserve := decimal.NewFromInt(150)
	return CreateSpec{
		ArtworkID:       "art1",
		Title:           "Blue Hour",
		ArtistID:        "artist1",
		ArtistName:      "Artist One",
		StartingPrice:   decimal.NewFromInt(100),
		ReservePrice:    &reserve,
		MinBidIncrement: decimal.NewFromInt(10),
		StartTime:       now.Add(-time.Minute),
		EndTime:         now.Add(time.Hour),
	}
}

func TestCreateSpec_Validate(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	low := decimal.NewFromInt(50)

	tests := []struct {
		name   string
		mutate func(s *CreateSpec)
		field  string
	}{
		{name: "valid", mutate: func(s *CreateSpec) {}},
		{name: "zero_starting_price", mutate: func(s *CreateSpec) { s.StartingPrice = decimal.Zero }, field: "starting_price"},
		{name: "negative_increment", mutate: func(s *CreateSpec) { s.MinBidIncrement = decimal.NewFromInt(-1) }, field: "min_bid_increment"},
		{name: "reserve_below_start", mutate: func(s *CreateSpec) { s.ReservePrice = &low }, field: "reserve_price"},
		{name: "end_before_start", mutate: func(s *CreateSpec) { s.EndTime = s.StartTime.Add(-time.Second) }, field: "end_time"},
		{name: "end_equals_start", mutate: func(s *CreateSpec) { s.EndTime = s.StartTime }, field: "end_time"},
		{name: "missing_title", mutate: func(s *CreateSpec) { s.Title = " " }, field: "title"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spec := validSpec(now)
			tt.mutate(&spec)
			err := spec.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var ve *biddingerrors.ValidationError
			require.True(t, errors.As(err, &ve))
			require.Equal(t, tt.field, ve.Field)
			require.ErrorIs(t, err, biddingerrors.ErrValidation)
		})
	}
}

func TestStore_CreateInitialState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	store := New(repo)
	now := time.Now().UTC()

	tests := []struct {
		name       string
		start      time.Time
		wantStatus model.Status
	}{
		{name: "started", start: now.Add(-time.Minute), wantStatus: model.StatusActive},
		{name: "starts_now", start: now, wantStatus: model.StatusActive},
		{name: "future", start: now.Add(time.Minute), wantStatus: model.StatusScheduled},
	}

	for _, tt := range tests {
		spec := validSpec(now)
		spec.StartTime = tt.start

		var created model.Auction
		err := repo.RunInTx(ctx, func(tx repository.Tx) error {
			var err error
			created, err = store.Create(ctx, tx, spec, now)
			return err
		})
		require.NoError(t, err, tt.name)

		got, err := repo.GetAuction(ctx, created.AuctionID)
		require.NoError(t, err, tt.name)
		require.Equal(t, tt.wantStatus, got.Status, tt.name)
		require.True(t, got.CurrentPrice.Equal(spec.StartingPrice), tt.name)
		require.Equal(t, 0, got.TotalBids, tt.name)
		require.Empty(t, got.Watchers, tt.name)
		require.Len(t, got.PriceHistory, 1, tt.name)
		require.Empty(t, got.PriceHistory[0].BidID, tt.name)
		require.False(t, got.HasWinner(), tt.name)
	}
}

func TestStore_WatchersAreIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	store := New(repo)
	now := time.Now().UTC()

	var id string
	require.NoError(t, repo.RunInTx(ctx, func(tx repository.Tx) error {
		a, err := store.Create(ctx, tx, validSpec(now), now)
		id = a.AuctionID
		return err
	}))

	watch := func(fn func(context.Context, repository.Tx, string, string) (model.Auction, error), accountID string) {
		require.NoError(t, repo.RunInTx(ctx, func(tx repository.Tx) error {
			_, err := fn(ctx, tx, id, accountID)
			return err
		}))
	}

	watch(store.AddWatcher, "buyer1")
	watch(store.AddWatcher, "buyer1")
	watch(store.AddWatcher, "buyer2")

	got, err := repo.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{"buyer1", "buyer2"}, got.Watchers)

	watch(store.RemoveWatcher, "buyer1")
	watch(store.RemoveWatcher, "buyer1")
	watch(store.RemoveWatcher, "nobody")

	got, err = repo.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{"buyer2"}, got.Watchers)
}

func TestStore_UpdateFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	store := New(repo)
	now := time.Now().UTC()

	var id string
	require.NoError(t, repo.RunInTx(ctx, func(tx repository.Tx) error {
		a, err := store.Create(ctx, tx, validSpec(now), now)
		id = a.AuctionID
		return err
	}))

	price := decimal.NewFromInt(130)
	winner := "buyer1"
	require.NoError(t, repo.RunInTx(ctx, func(tx repository.Tx) error {
		_, err := store.UpdateFields(ctx, tx, id, AuctionPatch{CurrentPrice: &price, WinnerID: &winner})
		return err
	}))

	got, err := repo.GetAuction(ctx, id)
	require.NoError(t, err)
	require.True(t, got.CurrentPrice.Equal(price))
	require.Equal(t, "buyer1", got.WinnerID)
	require.Equal(t, "Blue Hour", got.Title)
	require.Equal(t, int64(2), got.Version)

	_, err = store.Get(ctx, nil, "")
	require.ErrorIs(t, err, biddingerrors.ErrValidation)

	err = repo.RunInTx(ctx, func(tx repository.Tx) error {
		_, err := store.UpdateFields(ctx, tx, "missing", AuctionPatch{})
		return err
	})
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
}
