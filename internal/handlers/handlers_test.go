package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticket-market/internal/services"
	"ticket-market/internal/services/ledger"
	"ticket-market/internal/status"
	"ticket-market/models"
	"ticket-market/security"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	engine = "engine"
	admin  = "admin"
	seller = "seller"
	buyer  = "buyer"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	mem    *ledger.Memory
	market *services.Market
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := ledger.NewMemory()
	market := services.NewMarket(services.MarketConfig{
		EngineAccount: engine,
		AdminAccount:  admin,
		Now:           func() time.Time { return now },
	}, ledger.NewRegistry(mem.Native(engine), mem), nil, zap.NewNop())
	return &testEnv{mem: mem, market: market}
}

func (env *testEnv) listDirect(t *testing.T, price int64, qty uint64) uint64 {
	t.Helper()
	id, err := env.market.Registry.CreateListing(context.Background(), services.CreateListingRequest{
		Seller:   seller,
		Price:    decimal.NewFromInt(price),
		Quantity: qty,
		Event:    models.Event{Name: "Concert", Time: now.Add(40 * 24 * time.Hour)},
		Currency: models.Native(),
	})
	require.NoError(t, err)
	return id
}

type requestOpts struct {
	body   any
	caller string
	path   map[string]string
	header map[string]string
}

func newEvent(t *testing.T, method, target string, opts requestOpts) (*core.RequestEvent, *httptest.ResponseRecorder) {
	t.Helper()

	var body bytes.Buffer
	if opts.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(opts.body))
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range opts.header {
		req.Header.Set(k, v)
	}
	for k, v := range opts.path {
		req.SetPathValue(k, v)
	}

	rec := httptest.NewRecorder()
	e := &core.RequestEvent{Event: router.Event{Response: rec, Request: req}}
	if opts.caller != "" {
		auth := core.NewRecord(core.NewAuthCollection("users"))
		auth.Id = opts.caller
		e.Auth = auth
	}
	return e, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func assertAPIError(t *testing.T, err error, code int) {
	t.Helper()
	var apiErr *router.ApiError
	require.True(t, errors.As(err, &apiErr), "expected an api error, got %v", err)
	assert.Equal(t, code, apiErr.Status)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{status.ErrNotFound, http.StatusNotFound},
		{status.ErrInvalidValue, http.StatusBadRequest},
		{status.ErrNotOwner, http.StatusForbidden},
		{status.ErrBidTooLow, http.StatusConflict},
		{status.ErrInsufficientFunds, http.StatusPaymentRequired},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.err), tt.err.Error())
	}
}

func TestListingHandler_CreateListing(t *testing.T) {
	env := newTestEnv(t)
	h := NewListingHandler(env.market, zap.NewNop())

	e, rec := newEvent(t, http.MethodPost, "/api/v1/market/listings", requestOpts{
		caller: seller,
		body: map[string]any{
			"price":    "25",
			"quantity": 3,
			"currency": "native",
			"event":    map[string]any{"name": "Concert", "time": now.Add(48 * time.Hour)},
		},
	})
	require.NoError(t, h.CreateListing(e))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ListingID uint64 `json:"listing_id"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, uint64(1), resp.ListingID)

	l, err := env.market.Queries.ListingInfo(1)
	require.NoError(t, err)
	assert.Equal(t, seller, l.Seller)
	assert.Equal(t, []uint64{1}, env.market.Queries.ListingsHeldBy(seller))
}

func TestListingHandler_CreateListingRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	h := NewListingHandler(env.market, zap.NewNop())

	e, _ := newEvent(t, http.MethodPost, "/api/v1/market/listings", requestOpts{body: map[string]any{}})
	assertAPIError(t, h.CreateListing(e), http.StatusUnauthorized)
}

func TestListingHandler_CreateListingRejectsPastEvent(t *testing.T) {
	env := newTestEnv(t)
	h := NewListingHandler(env.market, zap.NewNop())

	e, rec := newEvent(t, http.MethodPost, "/api/v1/market/listings", requestOpts{
		caller: seller,
		body: map[string]any{
			"price":    "25",
			"quantity": 1,
			"currency": "native",
			"event":    map[string]any{"name": "Gone", "time": now.Add(-time.Hour)},
		},
	})
	require.NoError(t, h.CreateListing(e))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	decode(t, rec, &resp)
	assert.Equal(t, "InvalidTime", resp["code"])
	assert.Equal(t, "validation", resp["kind"])
}

func TestListingHandler_UnlistByStranger(t *testing.T) {
	env := newTestEnv(t)
	id := env.listDirect(t, 10, 1)
	h := NewListingHandler(env.market, zap.NewNop())

	e, rec := newEvent(t, http.MethodDelete, "/api/v1/market/listings/1", requestOpts{
		caller: "mallory",
		path:   map[string]string{"id": "1"},
	})
	require.NoError(t, h.Unlist(e))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	l, err := env.market.Queries.ListingInfo(id)
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, l.Status)
}

func TestListingHandler_InvalidPathID(t *testing.T) {
	env := newTestEnv(t)
	h := NewListingHandler(env.market, zap.NewNop())

	for _, raw := range []string{"abc", "0", "-1"} {
		e, _ := newEvent(t, http.MethodDelete, "/api/v1/market/listings/"+raw, requestOpts{
			caller: seller,
			path:   map[string]string{"id": raw},
		})
		assertAPIError(t, h.Unlist(e), http.StatusBadRequest)
	}
}

func TestTradeHandler_Buy(t *testing.T) {
	env := newTestEnv(t)
	env.listDirect(t, 100, 2)
	env.mem.Mint(models.Native(), buyer, decimal.NewFromInt(500))
	h := NewTradeHandler(env.market)

	e, rec := newEvent(t, http.MethodPost, "/api/v1/market/listings/1/buy", requestOpts{
		caller: buyer,
		path:   map[string]string{"id": "1"},
		body:   map[string]any{"quantity": 1, "tender": map[string]any{"channel": "native", "value": "150"}},
	})
	require.NoError(t, h.Buy(e))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var receipt models.Receipt
	decode(t, rec, &receipt)
	assert.True(t, receipt.Total.Equal(decimal.NewFromInt(100)))
	assert.True(t, receipt.Fee.Equal(decimal.NewFromInt(2)))
	assert.True(t, receipt.Returned.Equal(decimal.NewFromInt(50)))
	assert.True(t, env.mem.BalanceOf(models.Native(), buyer).Equal(decimal.NewFromInt(400)))
}

func TestTradeHandler_BuyUnknownListing(t *testing.T) {
	env := newTestEnv(t)
	h := NewTradeHandler(env.market)

	e, rec := newEvent(t, http.MethodPost, "/api/v1/market/listings/9/buy", requestOpts{
		caller: buyer,
		path:   map[string]string{"id": "9"},
		body:   map[string]any{"quantity": 1, "tender": map[string]any{"channel": "native", "value": "10"}},
	})
	require.NoError(t, h.Buy(e))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]any
	decode(t, rec, &resp)
	assert.Equal(t, "NotFound", resp["code"])
}

func TestTradeHandler_PlaceBidOnDirectListing(t *testing.T) {
	env := newTestEnv(t)
	env.listDirect(t, 100, 2)
	h := NewTradeHandler(env.market)

	e, rec := newEvent(t, http.MethodPost, "/api/v1/market/listings/1/bids", requestOpts{
		caller: buyer,
		path:   map[string]string{"id": "1"},
		body:   map[string]any{"amount": "120", "tender": map[string]any{"channel": "native", "value": "120"}},
	})
	require.NoError(t, h.PlaceBid(e))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]any
	decode(t, rec, &resp)
	assert.Equal(t, "NotAnAuction", resp["code"])
}

func TestQueryHandler_ListListingsFilters(t *testing.T) {
	env := newTestEnv(t)
	env.listDirect(t, 10, 1)
	env.listDirect(t, 50, 1)
	env.listDirect(t, 90, 1)
	h := NewQueryHandler(env.market.Queries, nil)

	tests := []struct {
		name  string
		query string
		want  []uint64
	}{
		{"all active", "", []uint64{1, 2, 3}},
		{"paged", "?offset=1&limit=1", []uint64{2}},
		{"under price", "?max_price=50", []uint64{1, 2}},
		{"by seller", "?seller=" + seller, []uint64{1, 2, 3}},
		{"by event", "?event=Concert", []uint64{1, 2, 3}},
		{"no auctions", "?type=auction", []uint64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec := newEvent(t, http.MethodGet, "/api/v1/market/listings"+tt.query, requestOpts{})
			require.NoError(t, h.ListListings(e))
			require.Equal(t, http.StatusOK, rec.Code)

			var resp struct {
				Items []uint64 `json:"items"`
				Total uint64   `json:"total"`
			}
			decode(t, rec, &resp)
			assert.Equal(t, tt.want, resp.Items)
			assert.Equal(t, uint64(3), resp.Total)
		})
	}
}

func TestQueryHandler_ListListingsBadParams(t *testing.T) {
	env := newTestEnv(t)
	h := NewQueryHandler(env.market.Queries, nil)

	for _, q := range []string{"?limit=x", "?offset=-1", "?currency=dollars", "?max_price=cheap", "?closing_within=soon"} {
		e, _ := newEvent(t, http.MethodGet, "/api/v1/market/listings"+q, requestOpts{})
		assertAPIError(t, h.ListListings(e), http.StatusBadRequest)
	}
}

func TestQueryHandler_GetAuctionOnDirectListing(t *testing.T) {
	env := newTestEnv(t)
	env.listDirect(t, 10, 1)
	h := NewQueryHandler(env.market.Queries, nil)

	e, rec := newEvent(t, http.MethodGet, "/api/v1/market/listings/1/auction", requestOpts{
		path: map[string]string{"id": "1"},
	})
	require.NoError(t, h.GetAuction(e))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueryHandler_GetCurrency(t *testing.T) {
	env := newTestEnv(t)
	h := NewQueryHandler(env.market.Queries, nil)

	e, rec := newEvent(t, http.MethodGet, "/api/v1/market/currencies/native", requestOpts{
		path: map[string]string{"currency": "native"},
	})
	require.NoError(t, h.GetCurrency(e))

	var resp map[string]any
	decode(t, rec, &resp)
	assert.Equal(t, true, resp["approved"])
	assert.Equal(t, "0", resp["fee_balance"])
}

type stubHistory struct {
	entries []services.HistoryEntry
	err     error
}

func (s *stubHistory) History(context.Context, uint64) ([]services.HistoryEntry, error) {
	return s.entries, s.err
}

func TestQueryHandler_GetHistory(t *testing.T) {
	env := newTestEnv(t)
	env.listDirect(t, 10, 1)

	h := NewQueryHandler(env.market.Queries, &stubHistory{entries: []services.HistoryEntry{{Type: string(models.EventListed)}}})
	e, rec := newEvent(t, http.MethodGet, "/api/v1/market/listings/1/history", requestOpts{
		path: map[string]string{"id": "1"},
	})
	require.NoError(t, h.GetHistory(e))
	assert.Equal(t, http.StatusOK, rec.Code)

	h = NewQueryHandler(env.market.Queries, &stubHistory{err: errors.New("db down")})
	e, _ = newEvent(t, http.MethodGet, "/api/v1/market/listings/1/history", requestOpts{
		path: map[string]string{"id": "1"},
	})
	assertAPIError(t, h.GetHistory(e), http.StatusInternalServerError)
}

type stubJournal struct{ n int64 }

func (s stubJournal) Len(context.Context) (int64, error) { return s.n, nil }

func newAdminHandler(t *testing.T, env *testEnv) *AdminHandler {
	t.Helper()
	hash, err := security.GenerateAdminKeyHash("s3cret")
	require.NoError(t, err)
	return NewAdminHandler(env.market, stubJournal{n: 7}, admin, hash, zap.NewNop())
}

func TestAdminHandler_RequireAdminKey(t *testing.T) {
	env := newTestEnv(t)
	h := newAdminHandler(t, env)

	e, _ := newEvent(t, http.MethodPost, "/api/v1/market/admin/reconcile", requestOpts{
		header: map[string]string{AdminKeyHeader: "wrong"},
	})
	assertAPIError(t, h.RequireAdminKey(e), http.StatusForbidden)

	e, _ = newEvent(t, http.MethodPost, "/api/v1/market/admin/reconcile", requestOpts{
		header: map[string]string{AdminKeyHeader: "s3cret"},
	})
	assert.NoError(t, h.RequireAdminKey(e))
}

func TestAdminHandler_SetCurrencyApproval(t *testing.T) {
	env := newTestEnv(t)
	h := newAdminHandler(t, env)

	e, rec := newEvent(t, http.MethodPut, "/api/v1/market/admin/currencies/token:usdt", requestOpts{
		path: map[string]string{"currency": "token:usdt"},
		body: map[string]any{"approved": true},
	})
	require.NoError(t, h.SetCurrencyApproval(e))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.market.Queries.IsCurrencyApproved(models.Token("usdt")))
}

func TestAdminHandler_WithdrawNativeFees(t *testing.T) {
	env := newTestEnv(t)
	env.listDirect(t, 100, 1)
	env.mem.Mint(models.Native(), buyer, decimal.NewFromInt(100))
	_, err := env.market.Sales.Buy(context.Background(), services.BuyRequest{
		ListingID: 1,
		Quantity:  1,
		Buyer:     buyer,
		Tender:    models.NativeTender(decimal.NewFromInt(100)),
	})
	require.NoError(t, err)

	h := newAdminHandler(t, env)
	e, rec := newEvent(t, http.MethodPost, "/api/v1/market/admin/fees/native/withdraw", requestOpts{})
	require.NoError(t, h.WithdrawNativeFees(e))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Amount decimal.Decimal `json:"amount"`
	}
	decode(t, rec, &resp)
	assert.True(t, resp.Amount.Equal(decimal.NewFromInt(2)))
	assert.True(t, env.mem.BalanceOf(models.Native(), admin).Equal(decimal.NewFromInt(2)))
}

func TestAdminHandler_ReconcileAndJournal(t *testing.T) {
	env := newTestEnv(t)
	h := newAdminHandler(t, env)

	e, rec := newEvent(t, http.MethodGet, "/api/v1/market/admin/reconcile", requestOpts{})
	require.NoError(t, h.Reconcile(e))
	assert.Equal(t, http.StatusOK, rec.Code)

	e, rec = newEvent(t, http.MethodGet, "/api/v1/market/admin/journal", requestOpts{})
	require.NoError(t, h.JournalStats(e))

	var resp map[string]any
	decode(t, rec, &resp)
	assert.Equal(t, float64(7), resp["events"])
}

func TestDevHandler_MintToken(t *testing.T) {
	env := newTestEnv(t)
	h := NewDevHandler(env.mem, engine)

	e, rec := newEvent(t, http.MethodPost, "/api/v1/dev/mint", requestOpts{
		body: map[string]any{"account": buyer, "currency": "token:usdt", "amount": "40"},
	})
	require.NoError(t, h.Mint(e))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, env.mem.BalanceOf(models.Token("usdt"), buyer).Equal(decimal.NewFromInt(40)))
	allowance, err := env.mem.Token("usdt").Allowance(context.Background(), buyer, engine)
	require.NoError(t, err)
	assert.True(t, allowance.Equal(decimal.NewFromInt(40)))
}
