package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ticket-market/internal/services/ledger"
	"ticket-market/models"
	"ticket-market/monitoring"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultFeePercent is the platform skim applied when none is configured.
var DefaultFeePercent = decimal.NewFromInt(2)

type MarketConfig struct {
	EngineAccount      string
	AdminAccount       string
	FeePercent         decimal.Decimal
	MaxAuctionDuration time.Duration
	Now                func() time.Time
}

// Market wires the engine components around one ledger registry.
type Market struct {
	Registry *Registry
	Sales    *SaleService
	Auctions *AuctionService
	Fees     *FeeLedger
	Queries  *QueryService
	Payments *PaymentService
	Events   *Emitter

	logger *zap.Logger
}

func NewMarket(cfg MarketConfig, ledgers *ledger.Registry, monitor *monitoring.Monitor, logger *zap.Logger, sinks ...Sink) *Market {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	feePercent := cfg.FeePercent
	if feePercent.IsZero() {
		feePercent = DefaultFeePercent
	}

	events := NewEmitter(logger, now, sinks...)
	payments := NewPaymentService(ledgers, cfg.EngineAccount, feePercent, monitor, logger)
	fees := NewFeeLedger(cfg.AdminAccount, payments, events, logger)
	registry := NewRegistry(RegistryConfig{
		Admin:              cfg.AdminAccount,
		MaxAuctionDuration: cfg.MaxAuctionDuration,
	}, payments, events, monitor, now, logger)

	return &Market{
		Registry: registry,
		Sales:    NewSaleService(registry, payments, fees, events, monitor, logger),
		Auctions: NewAuctionService(registry, payments, fees, events, monitor, now, logger),
		Fees:     fees,
		Queries:  NewQueryService(registry, fees, now),
		Payments: payments,
		Events:   events,
		logger:   logger,
	}
}

// Reconciliation compares what the engine holds in custody for a currency
// with what it owes: live bid escrow plus unwithdrawn fees.
type Reconciliation struct {
	Currency models.Currency `json:"currency"`
	Held     decimal.Decimal `json:"held"`
	Escrowed decimal.Decimal `json:"escrowed"`
	Fees     decimal.Decimal `json:"fees"`
	Drift    decimal.Decimal `json:"drift"`
}

func (m *Market) Reconcile(ctx context.Context) ([]Reconciliation, error) {
	escrowed := make(map[models.Currency]decimal.Decimal)
	for _, c := range m.Registry.currencies() {
		escrowed[c] = decimal.Zero
	}
	for _, c := range m.Fees.Currencies() {
		escrowed[c] = decimal.Zero
	}
	m.Registry.each(func(e *listingEntry) bool {
		for _, b := range e.bids {
			escrowed[b.Currency] = escrowed[b.Currency].Add(b.Amount)
		}
		return true
	})

	out := make([]Reconciliation, 0, len(escrowed))
	for c, owed := range escrowed {
		held, err := m.Payments.Held(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s custody balance: %w", c, err)
		}
		fees := m.Fees.Balance(c)
		out = append(out, Reconciliation{
			Currency: c,
			Held:     held,
			Escrowed: owed,
			Fees:     fees,
			Drift:    held.Sub(owed).Sub(fees),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency.String() < out[j].Currency.String() })
	return out, nil
}

// Drifts adapts Reconcile for the metrics monitor.
func (m *Market) Drifts(ctx context.Context) ([]monitoring.Drift, error) {
	recs, err := m.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]monitoring.Drift, len(recs))
	for i, r := range recs {
		out[i] = monitoring.Drift{Currency: r.Currency.String(), Amount: r.Drift.InexactFloat64()}
	}
	return out, nil
}
