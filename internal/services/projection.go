package services

import (
	"context"

	"ticket-market/models"

	"github.com/shopspring/decimal"
)

// Projection rebuilds catalog and ledger state by folding market events.
type Projection struct {
	Listings map[uint64]*models.Listing
	Auctions map[uint64]*models.Auction
	Bids     map[uint64]map[string]decimal.Decimal
	Fees     map[models.Currency]decimal.Decimal
	Approved map[models.Currency]bool
	Holders  *HolderIndex
}

func NewProjection() *Projection {
	return &Projection{
		Listings: make(map[uint64]*models.Listing),
		Auctions: make(map[uint64]*models.Auction),
		Bids:     make(map[uint64]map[string]decimal.Decimal),
		Fees:     make(map[models.Currency]decimal.Decimal),
		Approved: map[models.Currency]bool{models.Native(): true},
		Holders:  NewHolderIndex(),
	}
}

// ReplayJournal folds every journaled event into a fresh projection.
func ReplayJournal(ctx context.Context, j *Journal) (*Projection, error) {
	p := NewProjection()
	if err := j.Replay(ctx, func(ev models.MarketEvent) error {
		p.Apply(ev)
		return nil
	}); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Projection) Apply(ev models.MarketEvent) {
	id := ev.ListingID
	switch ev.Type {
	case models.EventListed:
		if ev.Listing == nil {
			return
		}
		l := *ev.Listing
		p.Listings[id] = &l
		if ev.Auction != nil {
			a := *ev.Auction
			p.Auctions[id] = &a
			p.Bids[id] = make(map[string]decimal.Decimal)
		}
		p.Holders.Add(ev.Account, id)

	case models.EventUnlisted:
		if l, ok := p.Listings[id]; ok {
			p.Holders.Remove(l.Holder, id)
			l.Status = models.ListingInactive
			l.Holder = ""
		}
		if a, ok := p.Auctions[id]; ok {
			a.Status = models.AuctionEnded
		}

	case models.EventPurchased:
		if l, ok := p.Listings[id]; ok {
			l.Sold += ev.Quantity
			if l.Sold == l.Quantity {
				l.Status = models.ListingSold
			}
		}
		p.Holders.Add(ev.Account, id)

	case models.EventBidPlaced:
		if a, ok := p.Auctions[id]; ok {
			a.HighestBid = ev.Amount
			a.HighestBidder = ev.Account
			a.Status = models.AuctionActive
			p.Bids[id][ev.Account] = ev.Amount
		}

	case models.EventBidRefunded, models.EventBidWithdrawn:
		if bids, ok := p.Bids[id]; ok {
			delete(bids, ev.Account)
		}

	case models.EventBidAccepted:
		if l, ok := p.Listings[id]; ok {
			l.Sold = l.Quantity
			l.Status = models.ListingSold
			l.Holder = ev.Counterparty
		}
		if a, ok := p.Auctions[id]; ok {
			a.Status = models.AuctionEnded
		}
		if bids, ok := p.Bids[id]; ok {
			delete(bids, ev.Counterparty)
		}
		p.Holders.Move(ev.Account, ev.Counterparty, id)

	case models.EventFeeCollected:
		p.Fees[ev.Currency] = p.Fees[ev.Currency].Add(ev.Amount)

	case models.EventFeesWithdrawn:
		p.Fees[ev.Currency] = p.Fees[ev.Currency].Sub(ev.Amount)

	case models.EventCurrencyApprovalChanged:
		if ev.Approved != nil {
			p.Approved[ev.Currency] = *ev.Approved
		}
	}
}
