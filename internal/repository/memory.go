package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"
)

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB.
// Transactions are optimistic: every auction and account read inside a
// transaction is validated against its committed version at commit time.
type MemoryRepo struct {
	mu            sync.RWMutex
	auctions      map[string]model.Auction         // key: auctionID
	accounts      map[string]model.Account         // key: accountID
	bids          map[string][]model.Bid           // key: auctionID -> bids in insertion order
	transactions  map[string][]model.Transaction   // key: accountID
	history       map[string][]model.HistoryRecord // key: accountID
	historyKeys   map[string]struct{}
	notifications []model.Notification
	notifyKeys    map[string]struct{}
	claimedKeys   map[string]time.Time
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:     make(map[string]model.Auction),
		accounts:     make(map[string]model.Account),
		bids:         make(map[string][]model.Bid),
		transactions: make(map[string][]model.Transaction),
		history:      make(map[string][]model.HistoryRecord),
		historyKeys:  make(map[string]struct{}),
		notifyKeys:   make(map[string]struct{}),
		claimedKeys:  make(map[string]time.Time),
	}
}

// RunInTx executes fn against a staged transaction and commits its writes atomically
func (r *MemoryRepo) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := newMemoryTx(r)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit aborted: %w", err)
	}
	return tx.commit()
}

// GetAuction returns a copy of the committed auction
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction: %w", biddingerrors.NotFound("auction", auctionID))
	}
	return auction.Clone(), nil
}

// ListAuctions returns committed auctions matching filter, oldest first
func (r *MemoryRepo) ListAuctions(_ context.Context, filter AuctionFilter) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Auction, 0, len(r.auctions))
	for id, auction := range r.auctions {
		if !filter.Matches(auction) {
			continue
		}
		if filter.BidderID != "" && !hasBidFrom(r.bids[id], filter.BidderID) {
			continue
		}
		out = append(out, auction.Clone())
	}
	sortAuctions(out)
	return out, nil
}

// GetBidsByAuction returns every bid for an auction, withdrawn ones included
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.NotFound("auction", auctionID))
	}
	return append([]model.Bid(nil), r.bids[auctionID]...), nil
}

// CreateAccount registers a new account with version 1
func (r *MemoryRepo) CreateAccount(_ context.Context, account model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account.AccountID == "" {
		return fmt.Errorf("create account: %w", biddingerrors.Invalid("account_id", "must not be empty"))
	}
	if _, exists := r.accounts[account.AccountID]; exists {
		return fmt.Errorf("create account %s: %w", account.AccountID, biddingerrors.ErrConflict)
	}
	if err := checkHoldInvariant(account); err != nil {
		return err
	}
	account.Version = 1
	r.accounts[account.AccountID] = account
	return nil
}

// GetAccount returns the committed account
func (r *MemoryRepo) GetAccount(_ context.Context, accountID string) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return model.Account{}, fmt.Errorf("get account: %w", biddingerrors.NotFound("account", accountID))
	}
	return account, nil
}

// GetTransactions returns the ledger journal of an account, oldest first
func (r *MemoryRepo) GetTransactions(_ context.Context, accountID string) ([]model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.accounts[accountID]; !ok {
		return nil, fmt.Errorf("get transactions: %w", biddingerrors.NotFound("account", accountID))
	}
	return append([]model.Transaction(nil), r.transactions[accountID]...), nil
}

// GetHistory returns the purchase, sale and auction history of an account
func (r *MemoryRepo) GetHistory(_ context.Context, accountID string) ([]model.HistoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.accounts[accountID]; !ok {
		return nil, fmt.Errorf("get history: %w", biddingerrors.NotFound("account", accountID))
	}
	return append([]model.HistoryRecord(nil), r.history[accountID]...), nil
}

// PendingNotifications returns up to limit undelivered notifications in enqueue order
func (r *MemoryRepo) PendingNotifications(_ context.Context, limit int) ([]model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Notification, 0)
	for _, n := range r.notifications {
		if n.DispatchedAt != nil {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetNotifications returns every notification addressed to userID
func (r *MemoryRepo) GetNotifications(_ context.Context, userID string) ([]model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Notification, 0)
	for _, n := range r.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkDispatched stamps a notification as delivered
func (r *MemoryRepo) MarkDispatched(_ context.Context, notificationID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.notifications {
		if r.notifications[i].NotificationID == notificationID {
			t := at
			r.notifications[i].DispatchedAt = &t
			return nil
		}
	}
	return fmt.Errorf("mark dispatched: %w", biddingerrors.NotFound("notification", notificationID))
}

// AddAuction stores an auction as-is. This method is intended for tests and seeding only.
func (r *MemoryRepo) AddAuction(auction model.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if auction.Version == 0 {
		auction.Version = 1
	}
	r.auctions[auction.AuctionID] = auction.Clone()
}

// memoryTx stages reads and writes until commit
type memoryTx struct {
	repo *MemoryRepo

	auctionReads map[string]int64
	accountReads map[string]int64

	auctions      map[string]model.Auction
	accounts      map[string]model.Account
	bids          map[string]model.Bid
	bidOrder      []string
	transactions  []model.Transaction
	history       []model.HistoryRecord
	notifications []model.Notification
	keys          map[string]struct{}
}

func newMemoryTx(r *MemoryRepo) *memoryTx {
	return &memoryTx{
		repo:         r,
		auctionReads: make(map[string]int64),
		accountReads: make(map[string]int64),
		auctions:     make(map[string]model.Auction),
		accounts:     make(map[string]model.Account),
		bids:         make(map[string]model.Bid),
		keys:         make(map[string]struct{}),
	}
}

func (t *memoryTx) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	if staged, ok := t.auctions[auctionID]; ok {
		return staged.Clone(), nil
	}
	t.repo.mu.RLock()
	auction, ok := t.repo.auctions[auctionID]
	t.repo.mu.RUnlock()
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction: %w", biddingerrors.NotFound("auction", auctionID))
	}
	if _, seen := t.auctionReads[auctionID]; !seen {
		t.auctionReads[auctionID] = auction.Version
	}
	return auction.Clone(), nil
}

func (t *memoryTx) SaveAuction(_ context.Context, auction model.Auction) error {
	if auction.AuctionID == "" {
		return fmt.Errorf("save auction: %w", biddingerrors.Invalid("auction_id", "must not be empty"))
	}
	t.auctions[auction.AuctionID] = auction.Clone()
	return nil
}

func (t *memoryTx) GetAccount(_ context.Context, accountID string) (model.Account, error) {
	if staged, ok := t.accounts[accountID]; ok {
		return staged, nil
	}
	t.repo.mu.RLock()
	account, ok := t.repo.accounts[accountID]
	t.repo.mu.RUnlock()
	if !ok {
		return model.Account{}, fmt.Errorf("get account: %w", biddingerrors.NotFound("account", accountID))
	}
	if _, seen := t.accountReads[accountID]; !seen {
		t.accountReads[accountID] = account.Version
	}
	return account, nil
}

func (t *memoryTx) SaveAccount(_ context.Context, account model.Account) error {
	if _, read := t.accountReads[account.AccountID]; !read {
		return fmt.Errorf("save account %s: must be read in the same transaction", account.AccountID)
	}
	t.accounts[account.AccountID] = account
	return nil
}

func (t *memoryTx) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	// reading the auction puts it in the read set, which protects its bids
	if _, err := t.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	t.repo.mu.RLock()
	committed := append([]model.Bid(nil), t.repo.bids[auctionID]...)
	t.repo.mu.RUnlock()

	seen := make(map[string]bool, len(committed))
	for i, b := range committed {
		if staged, ok := t.bids[b.BidID]; ok {
			committed[i] = staged
		}
		seen[b.BidID] = true
	}
	for _, id := range t.bidOrder {
		b := t.bids[id]
		if b.AuctionID == auctionID && !seen[id] {
			committed = append(committed, b)
		}
	}
	return committed, nil
}

func (t *memoryTx) SaveBid(_ context.Context, bid model.Bid) error {
	if bid.BidID == "" || bid.AuctionID == "" {
		return fmt.Errorf("save bid: %w", biddingerrors.Invalid("bid", "missing bid or auction id"))
	}
	if _, ok := t.bids[bid.BidID]; !ok {
		t.bidOrder = append(t.bidOrder, bid.BidID)
	}
	t.bids[bid.BidID] = bid
	return nil
}

func (t *memoryTx) AppendTransactions(_ context.Context, txs ...model.Transaction) error {
	t.transactions = append(t.transactions, txs...)
	return nil
}

func (t *memoryTx) AppendHistory(_ context.Context, records ...model.HistoryRecord) error {
	t.history = append(t.history, records...)
	return nil
}

func (t *memoryTx) EnqueueNotifications(_ context.Context, notes ...model.Notification) error {
	t.notifications = append(t.notifications, notes...)
	return nil
}

func (t *memoryTx) ClaimKey(_ context.Context, key string) (bool, error) {
	if _, ok := t.keys[key]; ok {
		return false, nil
	}
	t.repo.mu.RLock()
	_, claimed := t.repo.claimedKeys[key]
	t.repo.mu.RUnlock()
	if claimed {
		return false, nil
	}
	t.keys[key] = struct{}{}
	return true, nil
}

// commit validates the read set and applies all staged writes under the write lock
func (t *memoryTx) commit() error {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, version := range t.auctionReads {
		current, ok := r.auctions[id]
		if !ok || current.Version != version {
			return fmt.Errorf("commit auction %s: %w", id, biddingerrors.ErrConflict)
		}
	}
	for id, version := range t.accountReads {
		current, ok := r.accounts[id]
		if !ok || current.Version != version {
			return fmt.Errorf("commit account %s: %w", id, biddingerrors.ErrConflict)
		}
	}
	for id := range t.auctions {
		if _, read := t.auctionReads[id]; !read {
			if _, exists := r.auctions[id]; exists {
				return fmt.Errorf("commit new auction %s: %w", id, biddingerrors.ErrConflict)
			}
		}
	}
	for key := range t.keys {
		if _, claimed := r.claimedKeys[key]; claimed {
			return fmt.Errorf("commit idempotency key %s: %w", key, biddingerrors.ErrConflict)
		}
	}
	for _, account := range t.accounts {
		if err := checkHoldInvariant(account); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	for id, auction := range t.auctions {
		auction.Version = r.auctions[id].Version + 1
		r.auctions[id] = auction
	}
	for id, account := range t.accounts {
		account.Version = r.accounts[id].Version + 1
		r.accounts[id] = account
	}
	for _, id := range t.bidOrder {
		bid := t.bids[id]
		list := r.bids[bid.AuctionID]
		replaced := false
		for i := range list {
			if list[i].BidID == id {
				list[i] = bid
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, bid)
		}
		r.bids[bid.AuctionID] = list
	}
	for _, tr := range t.transactions {
		r.transactions[tr.AccountID] = append(r.transactions[tr.AccountID], tr)
	}
	for _, rec := range t.history {
		if rec.Key != "" {
			if _, dup := r.historyKeys[rec.Key]; dup {
				continue
			}
			r.historyKeys[rec.Key] = struct{}{}
		}
		r.history[rec.AccountID] = append(r.history[rec.AccountID], rec)
	}
	for _, n := range t.notifications {
		if n.Key != "" {
			if _, dup := r.notifyKeys[n.Key]; dup {
				continue
			}
			r.notifyKeys[n.Key] = struct{}{}
		}
		r.notifications = append(r.notifications, n)
	}
	for key := range t.keys {
		r.claimedKeys[key] = now
	}
	return nil
}

func checkHoldInvariant(account model.Account) error {
	if account.HeldAmount.IsNegative() || account.HeldAmount.GreaterThan(account.Balance) {
		return fmt.Errorf("account %s: held amount %s outside [0, balance %s]",
			account.AccountID, account.HeldAmount.String(), account.Balance.String())
	}
	return nil
}

func hasBidFrom(bids []model.Bid, bidderID string) bool {
	for _, b := range bids {
		if b.BidderID == bidderID {
			return true
		}
	}
	return false
}

func sortAuctions(auctions []model.Auction) {
	sort.Slice(auctions, func(i, j int) bool {
		if auctions[i].CreatedAt.Equal(auctions[j].CreatedAt) {
			return auctions[i].AuctionID < auctions[j].AuctionID
		}
		return auctions[i].CreatedAt.Before(auctions[j].CreatedAt)
	})
}
