package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"ticket-market/internal/services/ledger"
	"ticket-market/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	engineAccount = "engine"
	adminAccount  = "admin"
	seller        = "seller"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	clock  *testClock
	mem    *ledger.Memory
	sink   *MemorySink
	market *Market
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := ledger.NewMemory()
	ledgers := ledger.NewRegistry(mem.Native(engineAccount), mem)
	clock := &testClock{now: t0}
	sink := &MemorySink{}

	market := NewMarket(MarketConfig{
		EngineAccount: engineAccount,
		AdminAccount:  adminAccount,
		Now:           clock.Now,
	}, ledgers, nil, zap.NewNop(), sink)

	return &fixture{
		t:      t,
		ctx:    context.Background(),
		clock:  clock,
		mem:    mem,
		sink:   sink,
		market: market,
	}
}

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func assertAmount(t *testing.T, want int64, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, got.Equal(d(want)), "want %d, got %s %v", want, got, msgAndArgs)
}

func (f *fixture) fundNative(account string, amount int64) {
	f.mem.Mint(models.Native(), account, d(amount))
}

// fundToken mints tokens and grants the engine an allowance for all of them.
func (f *fixture) fundToken(token, account string, amount int64) {
	f.mem.Mint(models.Token(token), account, d(amount))
	f.mem.Approve(token, account, engineAccount, d(amount))
}

func (f *fixture) approve(token string) {
	require.NoError(f.t, f.market.Registry.SetCurrencyApproval(f.ctx, adminAccount, models.Token(token), true))
}

func (f *fixture) native(account string) decimal.Decimal {
	return f.mem.BalanceOf(models.Native(), account)
}

func (f *fixture) token(token, account string) decimal.Decimal {
	return f.mem.BalanceOf(models.Token(token), account)
}

func (f *fixture) event() models.Event {
	return models.Event{
		Name:        "Summer Fest",
		Description: "Open air",
		Location:    "Vientiane",
		Image:       "ipfs://summer",
		Time:        t0.Add(40 * 24 * time.Hour),
	}
}

func (f *fixture) listDirect(price int64, quantity uint64, currency models.Currency) uint64 {
	f.t.Helper()
	id, err := f.market.Registry.CreateListing(f.ctx, CreateListingRequest{
		Seller:   seller,
		Price:    d(price),
		Quantity: quantity,
		Event:    f.event(),
		Currency: currency,
	})
	require.NoError(f.t, err)
	return id
}

// listAuction opens an auction that starts in one hour and ends two days later.
func (f *fixture) listAuction(currency models.Currency) uint64 {
	f.t.Helper()
	id, err := f.market.Registry.CreateListing(f.ctx, CreateListingRequest{
		Seller:   seller,
		Price:    d(1),
		Quantity: 4,
		Event:    f.event(),
		Currency: currency,
		Auction: &AuctionWindow{
			Start: t0.Add(time.Hour),
			End:   t0.Add(49 * time.Hour),
		},
	})
	require.NoError(f.t, err)
	return id
}

func (f *fixture) openAuction() {
	f.clock.Set(t0.Add(2 * time.Hour))
}

func (f *fixture) closeAuction() {
	f.clock.Set(t0.Add(50 * time.Hour))
}

func (f *fixture) listing(id uint64) models.Listing {
	f.t.Helper()
	l, err := f.market.Queries.ListingInfo(id)
	require.NoError(f.t, err)
	return l
}

func (f *fixture) auction(id uint64) models.Auction {
	f.t.Helper()
	a, err := f.market.Queries.AuctionInfo(id)
	require.NoError(f.t, err)
	return a
}

// assertReconciled checks custody equals escrowed bids plus fees for every currency.
func (f *fixture) assertReconciled() {
	f.t.Helper()
	recs, err := f.market.Reconcile(f.ctx)
	require.NoError(f.t, err)
	for _, r := range recs {
		assert.Truef(f.t, r.Drift.IsZero(), "%s drift %s (held %s escrowed %s fees %s)",
			r.Currency, r.Drift, r.Held, r.Escrowed, r.Fees)
	}
}
