package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Provider represents the backend that actually moves funds
type Provider string

const (
	ProviderMemory Provider = "memory"
	ProviderRemote Provider = "remote"
)

var (
	ErrRejected              = errors.New("ledger: transfer rejected by recipient")
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	ErrUnknownToken          = errors.New("ledger: token not registered")
)

// NativeChannel moves the native value unit in and out of the engine's custody account.
type NativeChannel interface {
	// Receive captures value attached to a call from the payer into custody
	Receive(ctx context.Context, from string, amount decimal.Decimal) error

	// Send pushes value out of custody; the recipient may reject it
	Send(ctx context.Context, to string, amount decimal.Decimal) error

	// Balance returns the native balance of an account
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
}

// TokenLedger is the standard balance/allowance/transfer interface of an external token ledger.
type TokenLedger interface {
	BalanceOf(ctx context.Context, account string) (decimal.Decimal, error)
	Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error)
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error
	TransferFrom(ctx context.Context, spender, from, to string, amount decimal.Decimal) error
}

// Factory creates token ledger handles for a token identifier
type Factory interface {
	CreateLedger(ctx context.Context, token string) (TokenLedger, error)
	Provider() Provider
}
