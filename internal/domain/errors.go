package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrBidderNotFound    = errors.New("bidder not found")
	ErrInvalidItem       = errors.New("invalid item")
	ErrInvalidTransition = errors.New("invalid auction status transition")
	ErrNotOnlineAuction  = errors.New("item is not an online auction")
	ErrNotOfflineAuction = errors.New("item is not an offline auction")
	ErrNotTimedAuction   = errors.New("item has no timed lifecycle")
	ErrDuplicateBid      = errors.New("bid already recorded")
	ErrInsufficientFunds = errors.New("balance would become negative")
	ErrConcurrentUpdate  = errors.New("item changed concurrently")
	ErrOwnerCannotWin    = errors.New("the owner cannot be the winner of their own item")
	ErrDuplicateBidder   = errors.New("bidder already exists")
	ErrInvalidBidder     = errors.New("invalid bidder")
	ErrDuplicateItem     = errors.New("item already exists")
	ErrJobNotFound       = errors.New("scheduled job not found")
)

type BidErrorKind string

const (
	ItemNotBiddable        BidErrorKind = "ItemNotBiddable"
	InvalidAmount          BidErrorKind = "InvalidAmount"
	BidTooLow              BidErrorKind = "BidTooLow"
	InsufficientBalance    BidErrorKind = "InsufficientBalance"
	SelfBidForbidden       BidErrorKind = "SelfBidForbidden"
	ConcurrentConflict     BidErrorKind = "ConcurrentConflict"
	PersistenceUnavailable BidErrorKind = "PersistenceUnavailable"
	UnknownBidder          BidErrorKind = "UnknownBidder"
	DuplicateSubmission    BidErrorKind = "DuplicateSubmission"
)

// BidError is the typed rejection returned by the arbiter. Message names the
// precondition that failed so the bidder can correct the submission.
type BidError struct {
	Kind         BidErrorKind     `json:"kind"`
	Message      string           `json:"message"`
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty"`
}

func NewBidError(kind BidErrorKind, format string, args ...interface{}) *BidError {
	return &BidError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *BidError) WithPrice(price decimal.Decimal) *BidError {
	e.CurrentPrice = &price
	return e
}

func (e *BidError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether the client may resubmit the same bid after a backoff.
func (e *BidError) Retryable() bool {
	return e.Kind == PersistenceUnavailable
}

func AsBidError(err error) (*BidError, bool) {
	var bidErr *BidError
	if errors.As(err, &bidErr) {
		return bidErr, true
	}
	return nil, false
}
