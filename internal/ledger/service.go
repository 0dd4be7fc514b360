package ledger

import (
	"context"
	"fmt"
	"strings"

	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"
	"artx-auction/internal/repository"

	"github.com/shopspring/decimal"
)

// Service exposes account operations that run through the repository
type Service struct {
	repo   repository.AuctionDB
	ledger *Ledger
	retry  repository.RetryPolicy
}

// NewService creates a ledger Service
func NewService(repo repository.AuctionDB, l *Ledger, retry repository.RetryPolicy) *Service {
	return &Service{repo: repo, ledger: l, retry: retry}
}

// RegisterAccount creates an account as the identity collaborator would at sign-up
func (s *Service) RegisterAccount(ctx context.Context, account model.Account) (model.Account, error) {
	if strings.TrimSpace(account.AccountID) == "" {
		return model.Account{}, fmt.Errorf("service: %w", biddingerrors.Invalid("account_id", "must not be empty"))
	}
	switch account.Role {
	case model.RoleArtist, model.RoleBuyer, model.RoleAdmin, model.RoleCSR:
	default:
		return model.Account{}, fmt.Errorf("service: %w", biddingerrors.Invalid("role", fmt.Sprintf("unknown role %q", account.Role)))
	}
	if account.Balance.IsNegative() {
		return model.Account{}, fmt.Errorf("service: %w", biddingerrors.Invalid("balance", "must not be negative"))
	}
	account.HeldAmount = decimal.Zero
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.ledger.now()
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return model.Account{}, fmt.Errorf("service: failed to register account %s: %w", account.AccountID, err)
	}
	return s.GetAccount(ctx, account.AccountID)
}

// Deposit adds funds to an account's balance
func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (model.Account, error) {
	if accountID == "" {
		return model.Account{}, fmt.Errorf("service: %w", biddingerrors.Invalid("account_id", "must not be empty"))
	}
	var updated model.Account
	err := repository.RunWithRetry(ctx, s.repo, s.retry, func(tx repository.Tx) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		record, err := s.ledger.Deposit(&acct, amount)
		if err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
		updated = acct
		return tx.AppendTransactions(ctx, record)
	})
	if err != nil {
		return model.Account{}, fmt.Errorf("service: failed to deposit into account %s: %w", accountID, err)
	}
	return updated, nil
}

// GetAccount returns the balance projection of an account
func (s *Service) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	if accountID == "" {
		return model.Account{}, fmt.Errorf("service: %w", biddingerrors.Invalid("account_id", "must not be empty"))
	}
	acct, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return model.Account{}, fmt.Errorf("service: failed to get account %s: %w", accountID, err)
	}
	return acct, nil
}

// Transactions returns the ledger journal of an account, newest first
func (s *Service) Transactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	txs, err := s.repo.GetTransactions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get transactions for %s: %w", accountID, err)
	}
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return txs, nil
}

// History returns an account's purchase, sale and auction history, optionally filtered by kind
func (s *Service) History(ctx context.Context, accountID string, kind model.HistoryKind) ([]model.HistoryRecord, error) {
	records, err := s.repo.GetHistory(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get history for %s: %w", accountID, err)
	}
	if kind == "" {
		return records, nil
	}
	filtered := make([]model.HistoryRecord, 0, len(records))
	for _, r := range records {
		if r.Kind == kind {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}
