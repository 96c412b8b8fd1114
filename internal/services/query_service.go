package services

import (
	"time"

	"ticket-market/internal/status"
	"ticket-market/models"

	"github.com/shopspring/decimal"
)

// Page selects matching ids: Offset counts matches to skip, Limit caps the result.
type Page struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

// QueryService is the read-only view over the registry.
type QueryService struct {
	registry *Registry
	fees     *FeeLedger
	now      func() time.Time
}

func NewQueryService(registry *Registry, fees *FeeLedger, now func() time.Time) *QueryService {
	return &QueryService{registry: registry, fees: fees, now: now}
}

func (q *QueryService) TotalListings() uint64 {
	return q.registry.Total()
}

func (q *QueryService) ListingsHeldBy(account string) []uint64 {
	return q.registry.holders.Held(account)
}

func (q *QueryService) ListingInfo(id uint64) (models.Listing, error) {
	var out models.Listing
	err := q.read(id, func(e *listingEntry) error {
		out = e.listing
		return nil
	})
	return out, err
}

func (q *QueryService) EventInfo(id uint64) (models.Event, error) {
	l, err := q.ListingInfo(id)
	return l.Event, err
}

func (q *QueryService) AuctionInfo(id uint64) (models.Auction, error) {
	var out models.Auction
	err := q.read(id, func(e *listingEntry) error {
		if e.auction == nil {
			return status.ErrNotAnAuction
		}
		out = *e.auction
		return nil
	})
	return out, err
}

// BidOf returns the bidder's live bid, or a zero bid when there is none.
func (q *QueryService) BidOf(id uint64, bidder string) (models.Bid, error) {
	var out models.Bid
	err := q.read(id, func(e *listingEntry) error {
		if e.auction == nil {
			return status.ErrNotAnAuction
		}
		bid, ok := e.bids[bidder]
		if !ok {
			bid = models.Bid{Bidder: bidder, Amount: decimal.Zero, Currency: e.auction.Currency}
		}
		out = bid
		return nil
	})
	return out, err
}

func (q *QueryService) IsCurrencyApproved(c models.Currency) bool {
	return q.registry.IsCurrencyApproved(c)
}

func (q *QueryService) FeeBalance(c models.Currency) decimal.Decimal {
	return q.fees.Balance(c)
}

func (q *QueryService) ActiveListings(p Page) []uint64 {
	return q.scan(p, func(e *listingEntry) bool {
		return e.listing.Status == models.ListingActive
	})
}

func (q *QueryService) ActiveAuctions(p Page) []uint64 {
	return q.scan(p, isLiveAuction)
}

// ListingsBySeller matches every listing the account created, in any status.
func (q *QueryService) ListingsBySeller(seller string, p Page) []uint64 {
	return q.scan(p, func(e *listingEntry) bool {
		return e.listing.Seller == seller
	})
}

// ListingsByEvent matches active listings whose event name is exactly name.
func (q *QueryService) ListingsByEvent(name string, p Page) []uint64 {
	return q.scan(p, func(e *listingEntry) bool {
		return e.listing.Status == models.ListingActive && e.listing.Event.Name == name
	})
}

func (q *QueryService) ListingsByCurrency(c models.Currency, p Page) []uint64 {
	return q.scan(p, func(e *listingEntry) bool {
		return e.listing.Status == models.ListingActive && e.listing.Currency == c
	})
}

// ListingsUnderPrice matches active listings with unit price at most ceiling.
func (q *QueryService) ListingsUnderPrice(ceiling decimal.Decimal, p Page) []uint64 {
	return q.scan(p, func(e *listingEntry) bool {
		return e.listing.Status == models.ListingActive && e.listing.Price.LessThanOrEqual(ceiling)
	})
}

// AuctionsClosingWithin matches live auctions whose end falls in [now, now+window].
func (q *QueryService) AuctionsClosingWithin(window time.Duration, p Page) []uint64 {
	now := q.now()
	deadline := now.Add(window)
	return q.scan(p, func(e *listingEntry) bool {
		if !isLiveAuction(e) {
			return false
		}
		end := e.auction.End
		return !end.Before(now) && !end.After(deadline)
	})
}

func isLiveAuction(e *listingEntry) bool {
	return e.auction != nil &&
		e.listing.Status == models.ListingActive &&
		e.auction.Status != models.AuctionEnded
}

func (q *QueryService) read(id uint64, fn func(e *listingEntry) error) error {
	entry := q.registry.entry(id)
	if entry == nil {
		return status.ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry)
}

func (q *QueryService) scan(p Page, match func(e *listingEntry) bool) []uint64 {
	ids := []uint64{}
	if p.Limit == 0 {
		return ids
	}
	var seen uint64
	q.registry.each(func(e *listingEntry) bool {
		if !match(e) {
			return true
		}
		seen++
		if seen <= p.Offset {
			return true
		}
		ids = append(ids, e.listing.ID)
		return uint64(len(ids)) < p.Limit
	})
	return ids
}
