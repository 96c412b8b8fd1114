package services

import (
	"context"
	"sort"
	"sync"

	"ticket-market/internal/status"
	"ticket-market/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FeeLedger accrues the platform skim per currency. Only the admin account
// can withdraw it.
type FeeLedger struct {
	mu       sync.Mutex
	balances map[models.Currency]decimal.Decimal

	admin    string
	payments *PaymentService
	events   *Emitter
	logger   *zap.Logger
}

func NewFeeLedger(admin string, payments *PaymentService, events *Emitter, logger *zap.Logger) *FeeLedger {
	return &FeeLedger{
		balances: make(map[models.Currency]decimal.Decimal),
		admin:    admin,
		payments: payments,
		events:   events,
		logger:   logger,
	}
}

func (f *FeeLedger) Credit(currency models.Currency, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[currency] = f.balances[currency].Add(amount)
}

func (f *FeeLedger) Balance(currency models.Currency) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[currency]
}

// Currencies returns every currency that has ever accrued a fee.
func (f *FeeLedger) Currencies() []models.Currency {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Currency, 0, len(f.balances))
	for c := range f.balances {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Withdraw sends the whole accrued balance to the admin. The entry is zeroed
// before the transfer so a concurrent withdraw sees nothing; if the transfer
// fails the amount is added back.
func (f *FeeLedger) Withdraw(ctx context.Context, caller string, currency models.Currency) (_ decimal.Decimal, err error) {
	defer func() { f.payments.monitor.TrackOperation("withdraw_fees", err) }()
	if caller != f.admin {
		return decimal.Zero, status.ErrNotAdmin
	}

	f.mu.Lock()
	amount := f.balances[currency]
	f.balances[currency] = decimal.Zero
	f.mu.Unlock()

	if amount.IsZero() {
		return decimal.Zero, nil
	}

	if err := f.payments.PayOut(ctx, caller, amount, currency); err != nil {
		f.Credit(currency, amount)
		f.logger.Warn("fee withdrawal failed, balance restored",
			zap.String("currency", currency.String()),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		return decimal.Zero, err
	}

	f.events.Emit(ctx, models.MarketEvent{
		Type:     models.EventFeesWithdrawn,
		Account:  caller,
		Amount:   amount,
		Currency: currency,
	})
	return amount, nil
}

// WithdrawNative withdraws fees accrued in the native currency.
func (f *FeeLedger) WithdrawNative(ctx context.Context, caller string) (decimal.Decimal, error) {
	return f.Withdraw(ctx, caller, models.Native())
}

// WithdrawToken withdraws fees accrued in one token.
func (f *FeeLedger) WithdrawToken(ctx context.Context, caller, token string) (decimal.Decimal, error) {
	return f.Withdraw(ctx, caller, models.Token(token))
}
