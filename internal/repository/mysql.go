package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

// MySQL error numbers mapped to biddingerrors.ErrConflict
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		account_id  VARCHAR(64)    NOT NULL PRIMARY KEY,
		name        VARCHAR(255)   NOT NULL,
		role        VARCHAR(16)    NOT NULL,
		balance     DECIMAL(18,4)  NOT NULL DEFAULT 0,
		held_amount DECIMAL(18,4)  NOT NULL DEFAULT 0,
		version     BIGINT         NOT NULL,
		created_at  DATETIME(6)    NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS auctions (
		auction_id        VARCHAR(64)   NOT NULL PRIMARY KEY,
		artwork_id        VARCHAR(64)   NOT NULL,
		title             VARCHAR(255)  NOT NULL,
		description       TEXT          NOT NULL,
		image_url         VARCHAR(1024) NOT NULL,
		artist_id         VARCHAR(64)   NOT NULL,
		artist_name       VARCHAR(255)  NOT NULL,
		starting_price    DECIMAL(18,4) NOT NULL,
		current_price     DECIMAL(18,4) NOT NULL,
		reserve_price     DECIMAL(18,4) NULL,
		min_bid_increment DECIMAL(18,4) NOT NULL,
		start_time        DATETIME(6)   NOT NULL,
		end_time          DATETIME(6)   NOT NULL,
		status            VARCHAR(16)   NOT NULL,
		winner_id         VARCHAR(64)   NOT NULL DEFAULT '',
		winner_name       VARCHAR(255)  NOT NULL DEFAULT '',
		total_bids        INT           NOT NULL DEFAULT 0,
		watchers          JSON          NOT NULL,
		price_history     JSON          NOT NULL,
		reserve_met       TINYINT(1)    NULL,
		cancelled_at      DATETIME(6)   NULL,
		cancelled_by      VARCHAR(64)   NOT NULL DEFAULT '',
		ended_at          DATETIME(6)   NULL,
		version           BIGINT        NOT NULL,
		created_at        DATETIME(6)   NOT NULL,
		INDEX idx_auctions_status (status),
		INDEX idx_auctions_artist (artist_id)
	)`,
	`CREATE TABLE IF NOT EXISTS bids (
		bid_id      VARCHAR(64)   NOT NULL PRIMARY KEY,
		auction_id  VARCHAR(64)   NOT NULL,
		bidder_id   VARCHAR(64)   NOT NULL,
		bidder_name VARCHAR(255)  NOT NULL,
		amount      DECIMAL(18,4) NOT NULL,
		placed_at   DATETIME(6)   NOT NULL,
		withdrawn   TINYINT(1)    NOT NULL DEFAULT 0,
		INDEX idx_bids_auction (auction_id),
		INDEX idx_bids_bidder (bidder_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		transaction_id VARCHAR(64)   NOT NULL PRIMARY KEY,
		account_id     VARCHAR(64)   NOT NULL,
		type           VARCHAR(32)   NOT NULL,
		amount         DECIMAL(18,4) NOT NULL,
		description    VARCHAR(512)  NOT NULL,
		auction_id     VARCHAR(64)   NOT NULL DEFAULT '',
		commission     DECIMAL(18,4) NOT NULL DEFAULT 0,
		created_at     DATETIME(6)   NOT NULL,
		INDEX idx_ledger_account (account_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS account_history (
		record_id         VARCHAR(64)   NOT NULL PRIMARY KEY,
		dedup_key         VARCHAR(255)  NULL UNIQUE,
		account_id        VARCHAR(64)   NOT NULL,
		kind              VARCHAR(16)   NOT NULL,
		auction_id        VARCHAR(64)   NOT NULL,
		artwork_id        VARCHAR(64)   NOT NULL,
		title             VARCHAR(255)  NOT NULL,
		counterparty_id   VARCHAR(64)   NOT NULL DEFAULT '',
		counterparty_name VARCHAR(255)  NOT NULL DEFAULT '',
		price             DECIMAL(18,4) NOT NULL,
		earnings          DECIMAL(18,4) NOT NULL DEFAULT 0,
		commission        DECIMAL(18,4) NOT NULL DEFAULT 0,
		outcome           VARCHAR(32)   NOT NULL DEFAULT '',
		created_at        DATETIME(6)   NOT NULL,
		INDEX idx_history_account (account_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		notification_id VARCHAR(64)  NOT NULL PRIMARY KEY,
		dedup_key       VARCHAR(255) NULL UNIQUE,
		user_id         VARCHAR(64)  NOT NULL,
		auction_id      VARCHAR(64)  NOT NULL,
		type            VARCHAR(32)  NOT NULL,
		title           VARCHAR(255) NOT NULL,
		message         TEXT         NOT NULL,
		created_at      DATETIME(6)  NOT NULL,
		dispatched_at   DATETIME(6)  NULL,
		seq             BIGINT       NOT NULL AUTO_INCREMENT UNIQUE,
		INDEX idx_notifications_pending (dispatched_at, seq),
		INDEX idx_notifications_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		idem_key   VARCHAR(255) NOT NULL PRIMARY KEY,
		claimed_at DATETIME(6)  NOT NULL
	)`,
}

const auctionColumns = `auction_id, artwork_id, title, description, image_url, artist_id, artist_name,
	starting_price, current_price, reserve_price, min_bid_increment, start_time, end_time, status,
	winner_id, winner_name, total_bids, watchers, price_history, reserve_met, cancelled_at,
	cancelled_by, ended_at, version, created_at`

const bidColumns = `bid_id, auction_id, bidder_id, bidder_name, amount, placed_at, withdrawn`

const notificationColumns = `notification_id, COALESCE(dedup_key, ''), user_id, auction_id, type, title, message, created_at, dispatched_at`

// MySQLRepo is an AuctionDB backed by MySQL. Transactions lock the rows they
// read with SELECT ... FOR UPDATE and write with version-checked updates.
type MySQLRepo struct {
	db *sql.DB
}

// OpenMySQL connects to MySQL and verifies the connection
func OpenMySQL(user, pass, host, port, name string) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = pass
	cfg.Net = "tcp"
	cfg.Addr = host + ":" + port
	cfg.DBName = name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

// NewMySQLRepo wraps an open database handle
func NewMySQLRepo(db *sql.DB) *MySQLRepo {
	return &MySQLRepo{db: db}
}

// Migrate creates the tables used by the repository if they do not exist
func (r *MySQLRepo) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// RunInTx runs fn inside a database transaction
func (r *MySQLRepo) RunInTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapMySQLError(err))
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &mysqlTx{
		tx:              sqlTx,
		auctionVersions: make(map[string]int64),
		accountVersions: make(map[string]int64),
	}
	if err = fn(tx); err != nil {
		return mapMySQLError(err)
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapMySQLError(err))
	}
	return nil
}

// GetAuction returns the committed auction
func (r *MySQLRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE auction_id = ?`, auctionID)
	auction, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction: %w", biddingerrors.NotFound("auction", auctionID))
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// ListAuctions returns auctions matching filter, oldest first
func (r *MySQLRepo) ListAuctions(ctx context.Context, filter AuctionFilter) ([]model.Auction, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ArtistID != "" {
		where = append(where, "artist_id = ?")
		args = append(args, filter.ArtistID)
	}
	if filter.BidderID != "" {
		where = append(where, "auction_id IN (SELECT auction_id FROM bids WHERE bidder_id = ?)")
		args = append(args, filter.BidderID)
	}
	q := `SELECT ` + auctionColumns + ` FROM auctions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, auction_id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Auction, 0)
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("list auctions: %w", err)
		}
		out = append(out, auction)
	}
	return out, rows.Err()
}

// GetBidsByAuction returns every bid for an auction, withdrawn ones included
func (r *MySQLRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if _, err := r.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return queryBids(ctx, r.db, auctionID, false)
}

// CreateAccount registers a new account with version 1
func (r *MySQLRepo) CreateAccount(ctx context.Context, account model.Account) error {
	if account.AccountID == "" {
		return fmt.Errorf("create account: %w", biddingerrors.Invalid("account_id", "must not be empty"))
	}
	if err := checkHoldInvariant(account); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (account_id, name, role, balance, held_amount, version, created_at) VALUES (?, ?, ?, ?, ?, 1, ?)`,
		account.AccountID, account.Name, string(account.Role), account.Balance, account.HeldAmount, account.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create account %s: %w", account.AccountID, mapMySQLError(err))
	}
	return nil
}

// GetAccount returns the committed account
func (r *MySQLRepo) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT account_id, name, role, balance, held_amount, version, created_at FROM accounts WHERE account_id = ?`, accountID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("get account: %w", biddingerrors.NotFound("account", accountID))
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return account, nil
}

// GetTransactions returns the ledger journal of an account, oldest first
func (r *MySQLRepo) GetTransactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	if _, err := r.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT transaction_id, account_id, type, amount, description, auction_id, commission, created_at
		 FROM ledger_transactions WHERE account_id = ? ORDER BY created_at, transaction_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Transaction, 0)
	for rows.Next() {
		var (
			t    model.Transaction
			kind string
		)
		if err := rows.Scan(&t.TransactionID, &t.AccountID, &kind, &t.Amount, &t.Description, &t.AuctionID, &t.Commission, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("get transactions: %w", err)
		}
		t.Type = model.TransactionType(kind)
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetHistory returns the purchase, sale and auction history of an account
func (r *MySQLRepo) GetHistory(ctx context.Context, accountID string) ([]model.HistoryRecord, error) {
	if _, err := r.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT record_id, COALESCE(dedup_key, ''), account_id, kind, auction_id, artwork_id, title, counterparty_id,
		        counterparty_name, price, earnings, commission, outcome, created_at
		 FROM account_history WHERE account_id = ? ORDER BY created_at, record_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	out := make([]model.HistoryRecord, 0)
	for rows.Next() {
		var (
			h    model.HistoryRecord
			kind string
		)
		if err := rows.Scan(&h.RecordID, &h.Key, &h.AccountID, &kind, &h.AuctionID, &h.ArtworkID, &h.Title,
			&h.CounterpartyID, &h.CounterpartyName, &h.Price, &h.Earnings, &h.Commission, &h.Outcome, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("get history: %w", err)
		}
		h.Kind = model.HistoryKind(kind)
		out = append(out, h)
	}
	return out, rows.Err()
}

// PendingNotifications returns up to limit undelivered notifications in enqueue order
func (r *MySQLRepo) PendingNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE dispatched_at IS NULL ORDER BY seq LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// GetNotifications returns every notification addressed to userID
func (r *MySQLRepo) GetNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("get notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// MarkDispatched stamps a notification as delivered
func (r *MySQLRepo) MarkDispatched(ctx context.Context, notificationID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET dispatched_at = ? WHERE notification_id = ?`, at.UTC(), notificationID)
	if err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark dispatched: %w", biddingerrors.NotFound("notification", notificationID))
	}
	return nil
}

// mysqlTx tracks the versions of the rows it locked so that writes can be version-checked
type mysqlTx struct {
	tx              *sql.Tx
	auctionVersions map[string]int64
	accountVersions map[string]int64
}

func (t *mysqlTx) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE auction_id = ? FOR UPDATE`, auctionID)
	auction, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction: %w", biddingerrors.NotFound("auction", auctionID))
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	t.auctionVersions[auctionID] = auction.Version
	return auction, nil
}

func (t *mysqlTx) SaveAuction(ctx context.Context, a model.Auction) error {
	watchers, err := json.Marshal(nonNilStrings(a.Watchers))
	if err != nil {
		return fmt.Errorf("encode watchers: %w", err)
	}
	history, err := json.Marshal(a.PriceHistory)
	if err != nil {
		return fmt.Errorf("encode price history: %w", err)
	}
	reserve := decimal.NullDecimal{}
	if a.ReservePrice != nil {
		reserve = decimal.NullDecimal{Decimal: *a.ReservePrice, Valid: true}
	}
	reserveMet := sql.NullBool{}
	if a.ReserveMet != nil {
		reserveMet = sql.NullBool{Bool: *a.ReserveMet, Valid: true}
	}

	version, known := t.auctionVersions[a.AuctionID]
	if !known {
		_, err = t.tx.ExecContext(ctx, `INSERT INTO auctions (`+auctionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			a.AuctionID, a.ArtworkID, a.Title, a.Description, a.ImageURL, a.ArtistID, a.ArtistName,
			a.StartingPrice, a.CurrentPrice, reserve, a.MinBidIncrement, a.StartTime.UTC(), a.EndTime.UTC(), string(a.Status),
			a.WinnerID, a.WinnerName, a.TotalBids, watchers, history, reserveMet, nullTime(a.CancelledAt),
			a.CancelledBy, nullTime(a.EndedAt), a.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert auction %s: %w", a.AuctionID, mapMySQLError(err))
		}
		t.auctionVersions[a.AuctionID] = 1
		return nil
	}

	res, err := t.tx.ExecContext(ctx, `UPDATE auctions SET
			artwork_id = ?, title = ?, description = ?, image_url = ?, artist_id = ?, artist_name = ?,
			starting_price = ?, current_price = ?, reserve_price = ?, min_bid_increment = ?, start_time = ?,
			end_time = ?, status = ?, winner_id = ?, winner_name = ?, total_bids = ?, watchers = ?,
			price_history = ?, reserve_met = ?, cancelled_at = ?, cancelled_by = ?, ended_at = ?,
			version = version + 1
		WHERE auction_id = ? AND version = ?`,
		a.ArtworkID, a.Title, a.Description, a.ImageURL, a.ArtistID, a.ArtistName,
		a.StartingPrice, a.CurrentPrice, reserve, a.MinBidIncrement, a.StartTime.UTC(),
		a.EndTime.UTC(), string(a.Status), a.WinnerID, a.WinnerName, a.TotalBids, watchers,
		history, reserveMet, nullTime(a.CancelledAt), a.CancelledBy, nullTime(a.EndedAt),
		a.AuctionID, version)
	if err != nil {
		return fmt.Errorf("update auction %s: %w", a.AuctionID, mapMySQLError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update auction %s: %w", a.AuctionID, biddingerrors.ErrConflict)
	}
	t.auctionVersions[a.AuctionID] = version + 1
	return nil
}

func (t *mysqlTx) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT account_id, name, role, balance, held_amount, version, created_at FROM accounts WHERE account_id = ? FOR UPDATE`, accountID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("get account: %w", biddingerrors.NotFound("account", accountID))
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("get account %s: %w", accountID, err)
	}
	t.accountVersions[accountID] = account.Version
	return account, nil
}

func (t *mysqlTx) SaveAccount(ctx context.Context, account model.Account) error {
	version, known := t.accountVersions[account.AccountID]
	if !known {
		return fmt.Errorf("save account %s: must be read in the same transaction", account.AccountID)
	}
	if err := checkHoldInvariant(account); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET name = ?, role = ?, balance = ?, held_amount = ?, version = version + 1
		 WHERE account_id = ? AND version = ?`,
		account.Name, string(account.Role), account.Balance, account.HeldAmount, account.AccountID, version)
	if err != nil {
		return fmt.Errorf("update account %s: %w", account.AccountID, mapMySQLError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update account %s: %w", account.AccountID, biddingerrors.ErrConflict)
	}
	t.accountVersions[account.AccountID] = version + 1
	return nil
}

func (t *mysqlTx) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if _, known := t.auctionVersions[auctionID]; !known {
		if _, err := t.GetAuction(ctx, auctionID); err != nil {
			return nil, err
		}
	}
	return queryBids(ctx, t.tx, auctionID, true)
}

func (t *mysqlTx) SaveBid(ctx context.Context, bid model.Bid) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bids (`+bidColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE withdrawn = VALUES(withdrawn)`,
		bid.BidID, bid.AuctionID, bid.BidderID, bid.BidderName, bid.Amount, bid.Timestamp.UTC(), bid.Withdrawn)
	if err != nil {
		return fmt.Errorf("save bid %s: %w", bid.BidID, mapMySQLError(err))
	}
	return nil
}

func (t *mysqlTx) AppendTransactions(ctx context.Context, txs ...model.Transaction) error {
	for _, tr := range txs {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO ledger_transactions (transaction_id, account_id, type, amount, description, auction_id, commission, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			tr.TransactionID, tr.AccountID, string(tr.Type), tr.Amount, tr.Description, tr.AuctionID, tr.Commission, tr.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("append transaction %s: %w", tr.TransactionID, mapMySQLError(err))
		}
	}
	return nil
}

func (t *mysqlTx) AppendHistory(ctx context.Context, records ...model.HistoryRecord) error {
	for _, h := range records {
		_, err := t.tx.ExecContext(ctx,
			`INSERT IGNORE INTO account_history (record_id, dedup_key, account_id, kind, auction_id, artwork_id, title,
			     counterparty_id, counterparty_name, price, earnings, commission, outcome, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.RecordID, nullString(h.Key), h.AccountID, string(h.Kind), h.AuctionID, h.ArtworkID, h.Title,
			h.CounterpartyID, h.CounterpartyName, h.Price, h.Earnings, h.Commission, h.Outcome, h.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("append history %s: %w", h.RecordID, mapMySQLError(err))
		}
	}
	return nil
}

func (t *mysqlTx) EnqueueNotifications(ctx context.Context, notes ...model.Notification) error {
	for _, n := range notes {
		_, err := t.tx.ExecContext(ctx,
			`INSERT IGNORE INTO notifications (notification_id, dedup_key, user_id, auction_id, type, title, message, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			n.NotificationID, nullString(n.Key), n.UserID, n.AuctionID, string(n.Type), n.Title, n.Message, n.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("enqueue notification %s: %w", n.NotificationID, mapMySQLError(err))
		}
	}
	return nil
}

func (t *mysqlTx) ClaimKey(ctx context.Context, key string) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT IGNORE INTO idempotency_keys (idem_key, claimed_at) VALUES (?, ?)`, key, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim key %s: %w", key, mapMySQLError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim key %s: %w", key, err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var (
		a                    model.Auction
		status               string
		reserve              decimal.NullDecimal
		watchers, history    []byte
		reserveMet           sql.NullBool
		cancelledAt, endedAt sql.NullTime
	)
	err := row.Scan(&a.AuctionID, &a.ArtworkID, &a.Title, &a.Description, &a.ImageURL, &a.ArtistID, &a.ArtistName,
		&a.StartingPrice, &a.CurrentPrice, &reserve, &a.MinBidIncrement, &a.StartTime, &a.EndTime, &status,
		&a.WinnerID, &a.WinnerName, &a.TotalBids, &watchers, &history, &reserveMet, &cancelledAt,
		&a.CancelledBy, &endedAt, &a.Version, &a.CreatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	a.Status = model.Status(status)
	if reserve.Valid {
		r := reserve.Decimal
		a.ReservePrice = &r
	}
	if reserveMet.Valid {
		m := reserveMet.Bool
		a.ReserveMet = &m
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		a.CancelledAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		a.EndedAt = &t
	}
	if err := json.Unmarshal(watchers, &a.Watchers); err != nil {
		return model.Auction{}, fmt.Errorf("decode watchers: %w", err)
	}
	if err := json.Unmarshal(history, &a.PriceHistory); err != nil {
		return model.Auction{}, fmt.Errorf("decode price history: %w", err)
	}
	return a, nil
}

func scanAccount(row rowScanner) (model.Account, error) {
	var (
		a    model.Account
		role string
	)
	if err := row.Scan(&a.AccountID, &a.Name, &role, &a.Balance, &a.HeldAmount, &a.Version, &a.CreatedAt); err != nil {
		return model.Account{}, err
	}
	a.Role = model.Role(role)
	return a, nil
}

func queryBids(ctx context.Context, q queryer, auctionID string, forUpdate bool) ([]model.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = ? ORDER BY placed_at, bid_id`
	if forUpdate {
		query += " FOR UPDATE"
	}
	rows, err := q.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	out := make([]model.Bid, 0)
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.BidderName, &b.Amount, &b.Timestamp, &b.Withdrawn); err != nil {
			return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanNotifications(rows *sql.Rows) ([]model.Notification, error) {
	out := make([]model.Notification, 0)
	for rows.Next() {
		var (
			n          model.Notification
			kind       string
			dispatched sql.NullTime
		)
		if err := rows.Scan(&n.NotificationID, &n.Key, &n.UserID, &n.AuctionID, &kind, &n.Title, &n.Message, &n.CreatedAt, &dispatched); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = model.NotificationType(kind)
		if dispatched.Valid {
			t := dispatched.Time
			n.DispatchedAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// mapMySQLError turns lock contention and duplicate keys into biddingerrors.ErrConflict
func mapMySQLError(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDeadlock, mysqlErrLockWaitTimeout, mysqlErrDuplicateEntry:
			return fmt.Errorf("%s: %w", me.Message, biddingerrors.ErrConflict)
		}
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
