package services

import (
	"context"
	"errors"
	"fmt"

	"ticket-market/internal/services/ledger"
	"ticket-market/internal/status"
	"ticket-market/models"
	"ticket-market/monitoring"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// PaymentService is the only component that touches the native channel or a
// token ledger. Engines call PullIn and PayOut and never the ledgers directly.
type PaymentService struct {
	ledgers    *ledger.Registry
	engine     string
	feePercent decimal.Decimal
	monitor    *monitoring.Monitor
	logger     *zap.Logger
}

func NewPaymentService(ledgers *ledger.Registry, engineAccount string, feePercent decimal.Decimal, monitor *monitoring.Monitor, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		ledgers:    ledgers,
		engine:     engineAccount,
		feePercent: feePercent,
		monitor:    monitor,
		logger:     logger,
	}
}

// EngineAccount is the account that holds escrow and fees on every ledger.
func (s *PaymentService) EngineAccount() string {
	return s.engine
}

// Fee splits a settlement amount into the platform fee, rounded down to a
// whole unit, and the seller's proceeds.
func (s *PaymentService) Fee(amount decimal.Decimal) (fee, proceeds decimal.Decimal) {
	fee = amount.Mul(s.feePercent).Div(hundred).Floor()
	return fee, amount.Sub(fee)
}

// PullIn moves amount from payer into engine custody. For the native currency
// only amount is captured from the attached value; anything above it stays
// with the payer. A failed pull is reported as insufficient funds.
func (s *PaymentService) PullIn(ctx context.Context, payer string, amount decimal.Decimal, currency models.Currency, tender models.Tender) error {
	if !tender.Matches(currency) {
		return status.ErrCurrencyMismatch
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: pull-in of %s", status.ErrInvalidValue, amount)
	}

	if currency.IsNative() {
		if tender.Value.LessThan(amount) {
			return status.ErrInsufficientFunds
		}
		if err := s.ledgers.Native().Receive(ctx, payer, amount); err != nil {
			s.monitor.TrackTransferFailure("in", currency.String())
			return fmt.Errorf("%w: %w", status.ErrInsufficientFunds, err)
		}
		return nil
	}

	tl, err := s.ledgers.Token(currency.Token)
	if err != nil {
		return fmt.Errorf("%w: %w", status.ErrTokenTransferFailed, err)
	}

	balance, err := tl.BalanceOf(ctx, payer)
	if err != nil {
		return fmt.Errorf("%w: %w", status.ErrInsufficientFunds, err)
	}
	if balance.LessThan(amount) {
		return status.ErrInsufficientFunds
	}
	allowance, err := tl.Allowance(ctx, payer, s.engine)
	if err != nil {
		return fmt.Errorf("%w: %w", status.ErrInsufficientFunds, err)
	}
	if allowance.LessThan(amount) {
		return status.ErrInsufficientFunds
	}

	if err := tl.TransferFrom(ctx, s.engine, payer, s.engine, amount); err != nil {
		s.monitor.TrackTransferFailure("in", currency.String())
		return fmt.Errorf("%w: %w", status.ErrInsufficientFunds, err)
	}
	return nil
}

// PayOut pushes amount from engine custody to recipient.
func (s *PaymentService) PayOut(ctx context.Context, recipient string, amount decimal.Decimal, currency models.Currency) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: pay-out of %s", status.ErrInvalidValue, amount)
	}

	if currency.IsNative() {
		if err := s.ledgers.Native().Send(ctx, recipient, amount); err != nil {
			s.monitor.TrackTransferFailure("out", currency.String())
			return fmt.Errorf("%w: %w", status.ErrTransferFailed, err)
		}
		return nil
	}

	tl, err := s.ledgers.Token(currency.Token)
	if err == nil {
		err = tl.Transfer(ctx, s.engine, recipient, amount)
	}
	if err != nil {
		s.monitor.TrackTransferFailure("out", currency.String())
		return fmt.Errorf("%w: %w", status.ErrTokenTransferFailed, err)
	}
	return nil
}

// reverse returns funds already pulled from payer after a later step failed.
// A failed reversal leaves funds stranded in custody and is logged loudly.
func (s *PaymentService) reverse(ctx context.Context, payer string, amount decimal.Decimal, currency models.Currency, cause error) {
	if err := s.PayOut(ctx, payer, amount, currency); err != nil {
		s.logger.Error("failed to reverse pulled funds",
			zap.String("payer", payer),
			zap.String("amount", amount.String()),
			zap.String("currency", currency.String()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

// Held returns the engine's custody balance in currency.
func (s *PaymentService) Held(ctx context.Context, currency models.Currency) (decimal.Decimal, error) {
	if currency.IsNative() {
		return s.ledgers.Native().Balance(ctx, s.engine)
	}
	tl, err := s.ledgers.Token(currency.Token)
	if err != nil {
		return decimal.Zero, err
	}
	return tl.BalanceOf(ctx, s.engine)
}

// EnsureToken makes the token resolvable before it is approved for listings.
func (s *PaymentService) EnsureToken(ctx context.Context, currency models.Currency) error {
	if currency.IsNative() {
		return nil
	}
	if err := s.ledgers.Register(ctx, currency.Token); err != nil {
		if errors.Is(err, ledger.ErrUnknownToken) {
			return fmt.Errorf("%w: %w", status.ErrCurrencyNotApproved, err)
		}
		return err
	}
	return nil
}
