package services

import (
	"context"

	"ticket-market/internal/status"
	"ticket-market/models"
	"ticket-market/monitoring"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BuyRequest struct {
	ListingID uint64        `json:"listing_id"`
	Quantity  uint64        `json:"quantity"`
	Buyer     string        `json:"-"`
	Tender    models.Tender `json:"tender"`
}

// SaleService executes fixed-price purchases.
type SaleService struct {
	registry *Registry
	payments *PaymentService
	fees     *FeeLedger
	events   *Emitter
	monitor  *monitoring.Monitor
	logger   *zap.Logger
}

func NewSaleService(registry *Registry, payments *PaymentService, fees *FeeLedger, events *Emitter, monitor *monitoring.Monitor, logger *zap.Logger) *SaleService {
	return &SaleService{
		registry: registry,
		payments: payments,
		fees:     fees,
		events:   events,
		monitor:  monitor,
		logger:   logger,
	}
}

// Buy purchases units of a direct-sale listing. Funds are pulled and the
// seller paid before any bookkeeping changes; if paying the seller fails the
// buyer's funds are returned and the listing is left as it was.
func (s *SaleService) Buy(ctx context.Context, req BuyRequest) (_ *models.Receipt, err error) {
	defer func() { s.monitor.TrackOperation("buy", err) }()
	entry, err := s.registry.acquire("buy", req.ListingID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	l := &entry.listing
	if l.Status != models.ListingActive || l.IsAuction {
		return nil, status.ErrNotFound
	}
	if !req.Tender.Matches(l.Currency) {
		return nil, status.ErrCurrencyMismatch
	}
	if req.Quantity == 0 || req.Quantity > l.Remaining() {
		return nil, status.ErrInvalidQuantity
	}

	total := l.Price.Mul(decimal.NewFromUint64(req.Quantity))
	if err := s.payments.PullIn(ctx, req.Buyer, total, l.Currency, req.Tender); err != nil {
		return nil, err
	}

	fee, proceeds := s.payments.Fee(total)
	if proceeds.IsPositive() {
		if err := s.payments.PayOut(ctx, l.Seller, proceeds, l.Currency); err != nil {
			s.payments.reverse(ctx, req.Buyer, total, l.Currency, err)
			return nil, err
		}
	}

	l.Sold += req.Quantity
	if l.Sold == l.Quantity {
		l.Status = models.ListingSold
	}
	s.fees.Credit(l.Currency, fee)
	s.registry.holders.Add(req.Buyer, l.ID)

	receipt := &models.Receipt{
		ListingID: l.ID,
		Buyer:     req.Buyer,
		Seller:    l.Seller,
		Quantity:  req.Quantity,
		Total:     total,
		Fee:       fee,
		Proceeds:  proceeds,
		Returned:  decimal.Zero,
		Currency:  l.Currency,
	}
	if l.Currency.IsNative() {
		receipt.Returned = req.Tender.Value.Sub(total)
	}

	s.events.Emit(ctx,
		models.MarketEvent{
			Type:         models.EventPurchased,
			ListingID:    l.ID,
			Account:      req.Buyer,
			Counterparty: l.Seller,
			Amount:       total,
			Quantity:     req.Quantity,
			Currency:     l.Currency,
		},
		models.MarketEvent{
			Type:      models.EventFeeCollected,
			ListingID: l.ID,
			Amount:    fee,
			Currency:  l.Currency,
		},
	)
	s.monitor.TrackSettlement("sale", l.Currency.String(), fee.InexactFloat64())
	return receipt, nil
}
