package services

import (
	"context"
	"sync"
	"time"

	"ticket-market/internal/status"
	"ticket-market/models"
	"ticket-market/monitoring"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultMaxAuctionDuration bounds how far in the future an auction may end.
const DefaultMaxAuctionDuration = 30 * 24 * time.Hour

type AuctionWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type CreateListingRequest struct {
	Seller   string          `json:"-"`
	Price    decimal.Decimal `json:"price"`
	Quantity uint64          `json:"quantity"`
	Event    models.Event    `json:"event"`
	Currency models.Currency `json:"currency"`
	Auction  *AuctionWindow  `json:"auction,omitempty"`
}

// listingEntry is the unit of mutual exclusion: one listing, its optional
// auction and the bids escrowed against it.
type listingEntry struct {
	mu      sync.Mutex
	listing models.Listing
	auction *models.Auction
	bids    map[string]models.Bid
}

// Registry owns listings, auctions, the holder index, the approved currency
// set and the id counter.
type Registry struct {
	mu      sync.RWMutex
	entries []*listingEntry // entries[id-1]

	currencyMu sync.RWMutex
	approved   map[models.Currency]bool

	holders     *HolderIndex
	admin       string
	maxDuration time.Duration
	payments    *PaymentService
	events      *Emitter
	monitor     *monitoring.Monitor
	now         func() time.Time
	logger      *zap.Logger
}

type RegistryConfig struct {
	Admin              string
	MaxAuctionDuration time.Duration
}

func NewRegistry(cfg RegistryConfig, payments *PaymentService, events *Emitter, monitor *monitoring.Monitor, now func() time.Time, logger *zap.Logger) *Registry {
	maxDuration := cfg.MaxAuctionDuration
	if maxDuration <= 0 {
		maxDuration = DefaultMaxAuctionDuration
	}
	return &Registry{
		approved:    map[models.Currency]bool{models.Native(): true},
		holders:     NewHolderIndex(),
		admin:       cfg.Admin,
		maxDuration: maxDuration,
		payments:    payments,
		events:      events,
		monitor:     monitor,
		now:         now,
		logger:      logger,
	}
}

func (r *Registry) CreateListing(ctx context.Context, req CreateListingRequest) (_ uint64, err error) {
	defer func() { r.monitor.TrackOperation("create_listing", err) }()
	now := r.now()

	if !req.Price.IsPositive() || !wholeUnits(req.Price) || req.Quantity == 0 {
		return 0, status.ErrInvalidValue
	}
	if req.Event.Time.Before(now) {
		return 0, status.ErrInvalidTime
	}
	if !r.IsCurrencyApproved(req.Currency) {
		return 0, status.ErrCurrencyNotApproved
	}
	if w := req.Auction; w != nil {
		if w.Start.Before(now) || !w.End.After(w.Start) {
			return 0, status.ErrInvalidTime
		}
		if w.End.After(now.Add(r.maxDuration)) {
			return 0, status.ErrAuctionTooLong
		}
		if w.End.After(req.Event.Time) {
			return 0, status.ErrInvalidTime
		}
	}

	entry := &listingEntry{
		listing: models.Listing{
			Holder:    req.Seller,
			Seller:    req.Seller,
			Price:     req.Price,
			Quantity:  req.Quantity,
			Status:    models.ListingActive,
			Event:     req.Event,
			Currency:  req.Currency,
			IsAuction: req.Auction != nil,
			CreatedAt: now,
		},
	}
	if w := req.Auction; w != nil {
		entry.auction = &models.Auction{
			Start:      w.Start,
			End:        w.End,
			HighestBid: decimal.Zero,
			Status:     models.AuctionInactive,
			Currency:   req.Currency,
		}
		entry.bids = make(map[string]models.Bid)
	}

	// The entry is locked before it becomes visible so the Listed event is
	// emitted ahead of any operation on the new id.
	entry.mu.Lock()
	defer entry.mu.Unlock()

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	id := uint64(len(r.entries))
	r.mu.Unlock()

	entry.listing.ID = id
	if entry.auction != nil {
		entry.auction.ListingID = id
	}
	r.holders.Add(req.Seller, id)

	listed := models.MarketEvent{
		Type:      models.EventListed,
		ListingID: id,
		Account:   req.Seller,
		Amount:    req.Price,
		Quantity:  req.Quantity,
		Currency:  req.Currency,
	}
	snapshot := entry.listing
	listed.Listing = &snapshot
	if entry.auction != nil {
		auction := *entry.auction
		listed.Auction = &auction
	}
	r.events.Emit(ctx, listed)
	r.logger.Debug("listing created", zap.Uint64("listing_id", id), zap.Bool("auction", req.Auction != nil))
	return id, nil
}

// wholeUnits reports whether amount is a whole number of smallest currency units.
func wholeUnits(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(0))
}

func (r *Registry) Unlist(ctx context.Context, id uint64, caller string) (err error) {
	defer func() { r.monitor.TrackOperation("unlist", err) }()
	entry, err := r.acquire("unlist", id)
	if err != nil {
		return err
	}
	defer entry.mu.Unlock()

	l := &entry.listing
	if l.Status != models.ListingActive {
		return status.ErrNotFound
	}
	if l.Holder != caller {
		return status.ErrNotOwner
	}
	if l.Sold > 0 || (entry.auction != nil && entry.auction.Status != models.AuctionInactive) {
		return status.ErrAlreadySold
	}

	l.Status = models.ListingInactive
	if entry.auction != nil {
		entry.auction.Status = models.AuctionEnded
	}
	r.holders.Remove(l.Holder, id)
	l.Holder = ""

	r.events.Emit(ctx, models.MarketEvent{
		Type:      models.EventUnlisted,
		ListingID: id,
		Account:   caller,
		Currency:  l.Currency,
	})
	return nil
}

// SetCurrencyApproval approves or revokes a currency for new listings.
// Existing listings keep settling in their currency either way.
func (r *Registry) SetCurrencyApproval(ctx context.Context, caller string, currency models.Currency, approved bool) (err error) {
	defer func() { r.monitor.TrackOperation("set_currency_approval", err) }()
	if caller != r.admin {
		return status.ErrNotAdmin
	}
	if approved {
		if err := r.payments.EnsureToken(ctx, currency); err != nil {
			return err
		}
	}

	r.currencyMu.Lock()
	r.approved[currency] = approved
	r.currencyMu.Unlock()

	r.events.Emit(ctx, models.MarketEvent{
		Type:     models.EventCurrencyApprovalChanged,
		Account:  caller,
		Currency: currency,
		Approved: &approved,
	})
	return nil
}

func (r *Registry) IsCurrencyApproved(currency models.Currency) bool {
	r.currencyMu.RLock()
	defer r.currencyMu.RUnlock()
	return r.approved[currency]
}

func (r *Registry) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.entries))
}

func (r *Registry) Holders() *HolderIndex {
	return r.holders
}

func (r *Registry) entry(id uint64) *listingEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == 0 || id > uint64(len(r.entries)) {
		return nil
	}
	return r.entries[id-1]
}

// acquire returns the entry for id with its lock held.
func (r *Registry) acquire(op string, id uint64) (*listingEntry, error) {
	entry := r.entry(id)
	if entry == nil {
		return nil, status.ErrNotFound
	}
	start := time.Now()
	entry.mu.Lock()
	r.monitor.TrackLockWait(op, time.Since(start))
	return entry, nil
}

// each visits entries in ascending id order, each under its own lock.
// Returning false stops the scan.
func (r *Registry) each(fn func(e *listingEntry) bool) {
	r.mu.RLock()
	entries := r.entries
	r.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		cont := fn(e)
		e.mu.Unlock()
		if !cont {
			return
		}
	}
}

// currencies returns every currency that was ever approved or revoked.
func (r *Registry) currencies() []models.Currency {
	r.currencyMu.RLock()
	defer r.currencyMu.RUnlock()

	out := make([]models.Currency, 0, len(r.approved))
	for c := range r.approved {
		out = append(out, c)
	}
	return out
}
