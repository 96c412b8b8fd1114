package status

import "errors"

// Kind groups failures by cause so callers know whether to fix input,
// re-query state, or top up funds before retrying.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindStateConflict Kind = "state_conflict"
	KindFunds         Kind = "funds"
)

// Error is a typed rejection reason. Values are compared by identity, so
// wrap them with %w and match with errors.Is.
type Error struct {
	kind Kind
	code string
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Kind() Kind    { return e.kind }
func (e *Error) Code() string  { return e.code }

func newError(kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

var (
	ErrInvalidValue        = newError(KindValidation, "InvalidValue", "listing: price and quantity must be positive")
	ErrInvalidTime         = newError(KindValidation, "InvalidTime", "listing: invalid time window")
	ErrCurrencyNotApproved = newError(KindValidation, "CurrencyNotApproved", "currency: not approved")
	ErrAuctionTooLong      = newError(KindValidation, "AuctionTooLong", "auction: duration exceeds limit")
	ErrInvalidQuantity     = newError(KindValidation, "InvalidQuantity", "sale: invalid quantity")

	ErrNotOwner = newError(KindAuthorization, "NotOwner", "listing: caller is not the holder")
	ErrNotAdmin = newError(KindAuthorization, "NotAdmin", "admin: caller lacks the admin role")

	ErrNotFound                    = newError(KindStateConflict, "NotFound", "listing: not found")
	ErrAlreadySold                 = newError(KindStateConflict, "AlreadySold", "listing: already sold or bid on")
	ErrCurrencyMismatch            = newError(KindStateConflict, "CurrencyMismatch", "payment: channel does not match listing currency")
	ErrNotAnAuction                = newError(KindStateConflict, "NotAnAuction", "auction: listing is not an auction")
	ErrAuctionNotStarted           = newError(KindStateConflict, "AuctionNotStarted", "auction: not started")
	ErrAuctionEnded                = newError(KindStateConflict, "AuctionEnded", "auction: ended")
	ErrAuctionNotEnded             = newError(KindStateConflict, "AuctionNotEnded", "auction: not ended")
	ErrBidTooLow                   = newError(KindStateConflict, "BidTooLow", "auction: bid must exceed the highest bid")
	ErrNoBidToWithdraw             = newError(KindStateConflict, "NoBidToWithdraw", "auction: no bid to withdraw")
	ErrHighestBidderCannotWithdraw = newError(KindStateConflict, "HighestBidderCannotWithdraw", "auction: highest bidder cannot withdraw")
	ErrNoBidsPlaced                = newError(KindStateConflict, "NoBidsPlaced", "auction: no bids placed")

	ErrInsufficientFunds   = newError(KindFunds, "InsufficientFunds", "payment: insufficient funds")
	ErrTransferFailed      = newError(KindFunds, "TransferFailed", "payment: native transfer failed")
	ErrTokenTransferFailed = newError(KindFunds, "TokenTransferFailed", "payment: token transfer failed")
)

// KindOf returns the kind of the first typed reason in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return ""
}

// CodeOf returns the reason code of the first typed reason in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ""
}
