package services

import (
	"context"
	"errors"
	"fmt"

	"ticket-market/models"

	"github.com/shopspring/decimal"
)

var ErrMarketNotEmpty = errors.New("market: restore target already has listings")

// Restore loads state rebuilt from the event journal into a fresh market, so
// ids continue where the journal left off and escrowed bids stay settleable.
// It must run before the market takes traffic; no events are emitted.
func (m *Market) Restore(ctx context.Context, p *Projection) error {
	if m.Registry.Total() > 0 {
		return ErrMarketNotEmpty
	}
	for c, approved := range p.Approved {
		if !approved {
			continue
		}
		if err := m.Payments.EnsureToken(ctx, c); err != nil {
			return fmt.Errorf("failed to register ledger for %s: %w", c, err)
		}
	}

	m.Registry.restore(p)
	m.Fees.restore(p.Fees)
	return nil
}

func (r *Registry) restore(p *Projection) {
	var top uint64
	for id := range p.Listings {
		top = max(top, id)
	}

	entries := make([]*listingEntry, top)
	for i := range entries {
		id := uint64(i + 1)
		l, ok := p.Listings[id]
		if !ok {
			// Missing from a truncated journal; the id stays burned.
			entries[i] = &listingEntry{listing: models.Listing{ID: id, Status: models.ListingInactive}}
			continue
		}

		entry := &listingEntry{listing: *l}
		if a, ok := p.Auctions[id]; ok {
			auction := *a
			entry.auction = &auction
			entry.bids = make(map[string]models.Bid, len(p.Bids[id]))
			for bidder, amount := range p.Bids[id] {
				entry.bids[bidder] = models.Bid{Bidder: bidder, Amount: amount, Currency: auction.Currency}
			}
		}
		entries[i] = entry
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()

	r.currencyMu.Lock()
	for c, approved := range p.Approved {
		r.approved[c] = approved
	}
	r.currencyMu.Unlock()

	r.holders.restore(p.Holders)
}

func (f *FeeLedger) restore(balances map[models.Currency]decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c, amount := range balances {
		f.balances[c] = amount
	}
}

func (h *HolderIndex) restore(src *HolderIndex) {
	src.mu.RLock()
	defer src.mu.RUnlock()
	h.mu.Lock()
	defer h.mu.Unlock()

	h.holders = make(map[string]map[uint64]struct{}, len(src.holders))
	for account, ids := range src.holders {
		set := make(map[uint64]struct{}, len(ids))
		for id := range ids {
			set[id] = struct{}{}
		}
		h.holders[account] = set
	}
}
