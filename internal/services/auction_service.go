package services

import (
	"context"
	"time"

	"ticket-market/internal/status"
	"ticket-market/models"
	"ticket-market/monitoring"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BidRequest struct {
	ListingID uint64          `json:"listing_id"`
	Bidder    string          `json:"-"`
	Amount    decimal.Decimal `json:"amount"`
	Tender    models.Tender   `json:"tender"`
}

// AuctionService runs English auctions: bid admission with refund of the
// displaced highest bidder, withdrawal of non-winning bids and settlement.
type AuctionService struct {
	registry *Registry
	payments *PaymentService
	fees     *FeeLedger
	events   *Emitter
	monitor  *monitoring.Monitor
	now      func() time.Time
	logger   *zap.Logger
}

func NewAuctionService(registry *Registry, payments *PaymentService, fees *FeeLedger, events *Emitter, monitor *monitoring.Monitor, now func() time.Time, logger *zap.Logger) *AuctionService {
	return &AuctionService{
		registry: registry,
		payments: payments,
		fees:     fees,
		events:   events,
		monitor:  monitor,
		now:      now,
		logger:   logger,
	}
}

// PlaceBid escrows a new highest bid. A bidder that already has a live bid
// only tops it up by the difference. The displaced highest bidder is refunded
// before the new bid is recorded; if that refund fails the new bidder's funds
// are returned and the auction is unchanged.
func (s *AuctionService) PlaceBid(ctx context.Context, req BidRequest) (err error) {
	defer func() { s.monitor.TrackOperation("place_bid", err) }()
	entry, err := s.registry.acquire("place_bid", req.ListingID)
	if err != nil {
		return err
	}
	defer entry.mu.Unlock()

	l, a := &entry.listing, entry.auction
	if l.Status != models.ListingActive {
		return status.ErrNotFound
	}
	if a == nil {
		return status.ErrNotAnAuction
	}
	if !req.Tender.Matches(a.Currency) {
		return status.ErrCurrencyMismatch
	}
	now := s.now()
	if now.Before(a.Start) {
		return status.ErrAuctionNotStarted
	}
	if now.After(a.End) || a.Status == models.AuctionEnded {
		return status.ErrAuctionEnded
	}

	prior := entry.bids[req.Bidder].Amount
	due := req.Amount.Sub(prior)
	if a.Currency.IsNative() && req.Tender.Value.LessThan(due) {
		return status.ErrInsufficientFunds
	}
	if !wholeUnits(req.Amount) || req.Amount.LessThanOrEqual(a.HighestBid) {
		return status.ErrBidTooLow
	}

	if err := s.payments.PullIn(ctx, req.Bidder, due, a.Currency, req.Tender); err != nil {
		return err
	}

	displaced := a.HighestBidder
	var refund decimal.Decimal
	if displaced != "" && displaced != req.Bidder {
		refund = entry.bids[displaced].Amount
		if err := s.payments.PayOut(ctx, displaced, refund, a.Currency); err != nil {
			s.payments.reverse(ctx, req.Bidder, due, a.Currency, err)
			return err
		}
		delete(entry.bids, displaced)
	} else {
		displaced = ""
	}

	entry.bids[req.Bidder] = models.Bid{Bidder: req.Bidder, Amount: req.Amount, Currency: a.Currency}
	a.HighestBid = req.Amount
	a.HighestBidder = req.Bidder
	if a.Status == models.AuctionInactive {
		a.Status = models.AuctionActive
	}

	events := []models.MarketEvent{{
		Type:         models.EventBidPlaced,
		ListingID:    l.ID,
		Account:      req.Bidder,
		Counterparty: displaced,
		Amount:       req.Amount,
		Currency:     a.Currency,
	}}
	if displaced != "" {
		events = append(events, models.MarketEvent{
			Type:         models.EventBidRefunded,
			ListingID:    l.ID,
			Account:      displaced,
			Counterparty: req.Bidder,
			Amount:       refund,
			Currency:     a.Currency,
		})
	}
	s.events.Emit(ctx, events...)
	s.monitor.TrackBid(a.Currency.String())
	if displaced != "" {
		s.monitor.TrackRefund(a.Currency.String(), "outbid")
	}
	return nil
}

// WithdrawBid returns a non-winning bidder's escrow while the auction is open.
func (s *AuctionService) WithdrawBid(ctx context.Context, id uint64, caller string) (err error) {
	defer func() { s.monitor.TrackOperation("withdraw_bid", err) }()
	entry, err := s.registry.acquire("withdraw_bid", id)
	if err != nil {
		return err
	}
	defer entry.mu.Unlock()

	a := entry.auction
	if a == nil {
		return status.ErrNotAnAuction
	}
	if s.now().After(a.End) || a.Status == models.AuctionEnded {
		return status.ErrAuctionEnded
	}
	bid, ok := entry.bids[caller]
	if !ok || bid.Amount.IsZero() {
		return status.ErrNoBidToWithdraw
	}
	if a.HighestBidder == caller {
		return status.ErrHighestBidderCannotWithdraw
	}

	if err := s.payments.PayOut(ctx, caller, bid.Amount, bid.Currency); err != nil {
		return err
	}
	delete(entry.bids, caller)

	s.events.Emit(ctx, models.MarketEvent{
		Type:      models.EventBidWithdrawn,
		ListingID: id,
		Account:   caller,
		Amount:    bid.Amount,
		Currency:  bid.Currency,
	})
	s.monitor.TrackRefund(bid.Currency.String(), "withdrawn")
	return nil
}

// AcceptHighestBid settles an ended auction: the holder is paid the highest
// bid minus the fee and the winner becomes the holder. A settled auction
// rejects every further call with ErrAuctionEnded.
func (s *AuctionService) AcceptHighestBid(ctx context.Context, id uint64, caller string) (_ *models.Receipt, err error) {
	defer func() { s.monitor.TrackOperation("accept_bid", err) }()
	entry, err := s.registry.acquire("accept_bid", id)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	l, a := &entry.listing, entry.auction
	if a != nil && a.Status == models.AuctionEnded {
		return nil, status.ErrAuctionEnded
	}
	if l.Status != models.ListingActive {
		return nil, status.ErrNotFound
	}
	if l.Holder != caller {
		return nil, status.ErrNotOwner
	}
	if a == nil {
		return nil, status.ErrNotAnAuction
	}
	if s.now().Before(a.End) {
		return nil, status.ErrAuctionNotEnded
	}
	if !a.HasBids() {
		return nil, status.ErrNoBidsPlaced
	}

	winner := a.HighestBidder
	fee, proceeds := s.payments.Fee(a.HighestBid)
	if proceeds.IsPositive() {
		if err := s.payments.PayOut(ctx, caller, proceeds, a.Currency); err != nil {
			return nil, err
		}
	}

	quantity := l.Remaining()
	l.Sold = l.Quantity
	l.Status = models.ListingSold
	l.Holder = winner
	a.Status = models.AuctionEnded
	delete(entry.bids, winner)
	s.fees.Credit(a.Currency, fee)
	s.registry.holders.Move(caller, winner, id)

	s.events.Emit(ctx,
		models.MarketEvent{
			Type:         models.EventBidAccepted,
			ListingID:    id,
			Account:      caller,
			Counterparty: winner,
			Amount:       a.HighestBid,
			Quantity:     quantity,
			Currency:     a.Currency,
		},
		models.MarketEvent{
			Type:      models.EventFeeCollected,
			ListingID: id,
			Amount:    fee,
			Currency:  a.Currency,
		},
	)
	s.monitor.TrackSettlement("auction", a.Currency.String(), fee.InexactFloat64())

	return &models.Receipt{
		ListingID: id,
		Buyer:     winner,
		Seller:    caller,
		Quantity:  quantity,
		Total:     a.HighestBid,
		Fee:       fee,
		Proceeds:  proceeds,
		Returned:  decimal.Zero,
		Currency:  a.Currency,
	}, nil
}
