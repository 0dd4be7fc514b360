package biddingerrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Taxonomy sentinels. Every typed error below matches exactly one of them
// through errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid auction state")
	ErrBidTooLow         = errors.New("bid amount too low")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAuthorization     = errors.New("not authorized")
	ErrValidation        = errors.New("validation failed")
)

// Repository-level errors
var (
	ErrConflict = errors.New("concurrent modification")
)

// NotFoundError reports a missing auction, bid or account
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InvalidStateError reports an operation that is illegal for the auction's status
type InvalidStateError struct {
	AuctionID string
	Status    string
	Reason    string
}

func (e *InvalidStateError) Error() string { return e.Reason }

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// InvalidState builds an InvalidStateError
func InvalidState(auctionID, status, reason string) error {
	return &InvalidStateError{AuctionID: auctionID, Status: status, Reason: reason}
}

// BidTooLowError carries the rejected amount and the minimum acceptable one
type BidTooLowError struct {
	Amount  decimal.Decimal
	Minimum decimal.Decimal
	Reason  string
}

func (e *BidTooLowError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("Bid of $%s is too low. Minimum bid is $%s", e.Amount.StringFixed(2), e.Minimum.StringFixed(2))
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

// InsufficientFundsError carries the available and the required amounts
type InsufficientFundsError struct {
	AccountID string
	Available decimal.Decimal
	Required  decimal.Decimal
	Purpose   string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("Insufficient available balance. You have $%s available but need $%s for %s. Please add funds to your wallet.",
		e.Available.StringFixed(2), e.Required.StringFixed(2), e.Purpose)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// AuthorizationError reports an actor lacking role or ownership
type AuthorizationError struct {
	ActorID string
	Reason  string
}

func (e *AuthorizationError) Error() string { return e.Reason }

func (e *AuthorizationError) Unwrap() error { return ErrAuthorization }

// Unauthorized builds an AuthorizationError
func Unauthorized(actorID, reason string) error {
	return &AuthorizationError{ActorID: actorID, Reason: reason}
}

// ValidationError reports malformed input on a named field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Message returns the human-readable text of the innermost taxonomy error,
// falling back to err.Error() when err carries none.
func Message(err error) string {
	var (
		nf  *NotFoundError
		is  *InvalidStateError
		btl *BidTooLowError
		inf *InsufficientFundsError
		az  *AuthorizationError
		ve  *ValidationError
	)
	switch {
	case errors.As(err, &nf):
		return nf.Error()
	case errors.As(err, &is):
		return is.Error()
	case errors.As(err, &btl):
		return btl.Error()
	case errors.As(err, &inf):
		return inf.Error()
	case errors.As(err, &az):
		return az.Error()
	case errors.As(err, &ve):
		return ve.Error()
	default:
		return err.Error()
	}
}
