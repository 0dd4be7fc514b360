// Package ledger mutates account balances and holds and journals every
// movement as an immutable transaction record.
package ledger

import (
	"fmt"
	"time"

	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"
	"artx-auction/utils"

	"github.com/shopspring/decimal"
)

// moneyPlaces is the number of decimal places kept for settled amounts (cents)
const moneyPlaces int32 = 2

// DefaultCommissionRate is the platform's share of every settled sale
var DefaultCommissionRate = decimal.RequireFromString("0.15")

// Ledger applies fund movements to account values loaded inside a repository
// transaction. It never persists anything itself: callers save the mutated
// accounts and append the returned records in the same transaction.
type Ledger struct {
	now func() time.Time
}

// New creates a Ledger stamping records with the current UTC time
func New() *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }}
}

// NewWithClock creates a Ledger with an injected clock
func NewWithClock(now func() time.Time) *Ledger {
	return &Ledger{now: now}
}

// Hold reserves amount of acct's available funds
func (l *Ledger) Hold(acct *model.Account, amount decimal.Decimal, auctionID, description string) (model.Transaction, error) {
	if !amount.IsPositive() {
		return model.Transaction{}, biddingerrors.Invalid("amount", "hold must be positive")
	}
	if acct.Available().LessThan(amount) {
		return model.Transaction{}, &biddingerrors.InsufficientFundsError{
			AccountID: acct.AccountID,
			Available: acct.Available(),
			Required:  amount,
			Purpose:   "this bid",
		}
	}
	acct.HeldAmount = acct.HeldAmount.Add(amount)
	return l.record(acct.AccountID, model.TxHold, amount, decimal.Zero, auctionID, description), nil
}

// Release returns up to amount of acct's held funds. Over-release is clamped
// at zero instead of failing so that earlier inconsistencies cannot cascade.
func (l *Ledger) Release(acct *model.Account, amount decimal.Decimal, auctionID, description string) model.Transaction {
	released := decimal.Min(amount, acct.HeldAmount)
	if released.IsNegative() {
		released = decimal.Zero
	}
	acct.HeldAmount = acct.HeldAmount.Sub(released)
	return l.record(acct.AccountID, model.TxRelease, released, decimal.Zero, auctionID, description)
}

// Deposit adds funds to acct's balance
func (l *Ledger) Deposit(acct *model.Account, amount decimal.Decimal) (model.Transaction, error) {
	if !amount.IsPositive() {
		return model.Transaction{}, biddingerrors.Invalid("amount", "deposit must be greater than zero")
	}
	acct.Balance = acct.Balance.Add(amount)
	return l.record(acct.AccountID, model.TxDeposit, amount, decimal.Zero, "", "Funds deposited to wallet"), nil
}

// Charge debits a fee from acct's available funds
func (l *Ledger) Charge(acct *model.Account, amount decimal.Decimal, kind model.TransactionType, auctionID, description string) (model.Transaction, error) {
	if !amount.IsPositive() {
		return model.Transaction{}, biddingerrors.Invalid("amount", "charge must be positive")
	}
	if acct.Available().LessThan(amount) {
		return model.Transaction{}, &biddingerrors.InsufficientFundsError{
			AccountID: acct.AccountID,
			Available: acct.Available(),
			Required:  amount,
			Purpose:   description,
		}
	}
	acct.Balance = acct.Balance.Sub(amount)
	return l.record(acct.AccountID, kind, amount.Neg(), decimal.Zero, auctionID, description), nil
}

// Settlement is the outcome of Settle
type Settlement struct {
	Amount       decimal.Decimal
	Earnings     decimal.Decimal
	Commission   decimal.Decimal
	Transactions []model.Transaction
}

// Settle moves amount from debit's balance to credit's balance minus the
// commission, which the platform keeps. The debit account's hold is not
// touched; callers release it separately.
func (l *Ledger) Settle(debit, credit *model.Account, amount, commissionRate decimal.Decimal, auctionID, title string) (Settlement, error) {
	if !amount.IsPositive() {
		return Settlement{}, biddingerrors.Invalid("amount", "settlement must be positive")
	}
	if commissionRate.IsNegative() || commissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return Settlement{}, biddingerrors.Invalid("commission_rate", "must be between 0 and 1")
	}
	if debit.AccountID == credit.AccountID {
		return Settlement{}, biddingerrors.Invalid("account", "cannot settle an account with itself")
	}
	if debit.Balance.LessThan(amount) {
		return Settlement{}, &biddingerrors.InsufficientFundsError{
			AccountID: debit.AccountID,
			Available: debit.Balance,
			Required:  amount,
			Purpose:   fmt.Sprintf("settlement of %q", title),
		}
	}

	earnings := amount.Mul(decimal.NewFromInt(1).Sub(commissionRate)).Round(moneyPlaces)
	commission := amount.Sub(earnings)

	debit.Balance = debit.Balance.Sub(amount)
	credit.Balance = credit.Balance.Add(earnings)

	pct := commissionRate.Mul(decimal.NewFromInt(100)).String()
	return Settlement{
		Amount:     amount,
		Earnings:   earnings,
		Commission: commission,
		Transactions: []model.Transaction{
			l.record(debit.AccountID, model.TxPurchase, amount.Neg(), decimal.Zero, auctionID,
				fmt.Sprintf("Won auction: %q", title)),
			l.record(credit.AccountID, model.TxAuctionSale, earnings, commission, auctionID,
				fmt.Sprintf("Auction sold: %q (after %s%% commission)", title, pct)),
		},
	}, nil
}

func (l *Ledger) record(accountID string, kind model.TransactionType, amount, commission decimal.Decimal, auctionID, description string) model.Transaction {
	return model.Transaction{
		TransactionID: utils.GenerateID(),
		AccountID:     accountID,
		Type:          kind,
		Amount:        amount,
		Description:   description,
		AuctionID:     auctionID,
		Commission:    commission,
		CreatedAt:     l.now(),
	}
}
