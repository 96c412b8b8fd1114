package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ticket-market/internal/services"
	"ticket-market/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// HistoryReader returns the stored event history of a listing.
type HistoryReader interface {
	History(ctx context.Context, listingID uint64) ([]services.HistoryEntry, error)
}

// QueryHandler serves the read surface.
type QueryHandler struct {
	queries *services.QueryService
	history HistoryReader
}

func NewQueryHandler(queries *services.QueryService, history HistoryReader) *QueryHandler {
	return &QueryHandler{queries: queries, history: history}
}

func pageFrom(e *core.RequestEvent) (services.Page, error) {
	q := e.Request.URL.Query()
	page := services.Page{Limit: defaultPageLimit}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return page, apis.NewBadRequestError("Invalid offset", nil)
		}
		page.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return page, apis.NewBadRequestError("Invalid limit", nil)
		}
		page.Limit = min(n, maxPageLimit)
	}
	return page, nil
}

// ListListings - Paginated discovery. At most one filter applies, checked in
// the order: seller, event, currency, max_price, closing_within, type.
func (h *QueryHandler) ListListings(e *core.RequestEvent) error {
	page, err := pageFrom(e)
	if err != nil {
		return err
	}
	q := e.Request.URL.Query()

	var ids []uint64
	switch {
	case q.Get("seller") != "":
		ids = h.queries.ListingsBySeller(q.Get("seller"), page)
	case q.Get("event") != "":
		ids = h.queries.ListingsByEvent(q.Get("event"), page)
	case q.Get("currency") != "":
		c, err := models.ParseCurrency(q.Get("currency"))
		if err != nil {
			return apis.NewBadRequestError("Invalid currency", err)
		}
		ids = h.queries.ListingsByCurrency(c, page)
	case q.Get("max_price") != "":
		ceiling, err := decimal.NewFromString(q.Get("max_price"))
		if err != nil {
			return apis.NewBadRequestError("Invalid max_price", err)
		}
		ids = h.queries.ListingsUnderPrice(ceiling, page)
	case q.Get("closing_within") != "":
		window, err := time.ParseDuration(q.Get("closing_within"))
		if err != nil || window < 0 {
			return apis.NewBadRequestError("Invalid closing_within", err)
		}
		ids = h.queries.AuctionsClosingWithin(window, page)
	case q.Get("type") == "auction":
		ids = h.queries.ActiveAuctions(page)
	default:
		ids = h.queries.ActiveListings(page)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"offset": page.Offset,
		"limit":  page.Limit,
		"items":  ids,
		"total":  h.queries.TotalListings(),
	})
}

// GetListing - Basic listing info
func (h *QueryHandler) GetListing(e *core.RequestEvent) error {
	id, err := pathID(e)
	if err != nil {
		return err
	}
	l, err := h.queries.ListingInfo(id)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, l)
}

// GetEvent - Event metadata of a listing
func (h *QueryHandler) GetEvent(e *core.RequestEvent) error {
	id, err := pathID(e)
	if err != nil {
		return err
	}
	ev, err := h.queries.EventInfo(id)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, ev)
}

// GetAuction - Auction detail of a listing
func (h *QueryHandler) GetAuction(e *core.RequestEvent) error {
	id, err := pathID(e)
	if err != nil {
		return err
	}
	a, err := h.queries.AuctionInfo(id)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, a)
}

// GetBid - A bidder's live bid on a listing
func (h *QueryHandler) GetBid(e *core.RequestEvent) error {
	id, err := pathID(e)
	if err != nil {
		return err
	}
	bid, err := h.queries.BidOf(id, e.Request.PathValue("bidder"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, bid)
}

// GetHeldListings - Listings held by an account
func (h *QueryHandler) GetHeldListings(e *core.RequestEvent) error {
	account := e.Request.PathValue("account")
	return e.JSON(http.StatusOK, map[string]any{
		"account": account,
		"items":   h.queries.ListingsHeldBy(account),
	})
}

// GetCurrency - Approval state and accrued fees of a currency
func (h *QueryHandler) GetCurrency(e *core.RequestEvent) error {
	c, err := models.ParseCurrency(e.Request.PathValue("currency"))
	if err != nil {
		return apis.NewBadRequestError("Invalid currency", err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"currency":    c,
		"approved":    h.queries.IsCurrencyApproved(c),
		"fee_balance": h.queries.FeeBalance(c),
	})
}

// GetHistory - Stored event history of a listing
func (h *QueryHandler) GetHistory(e *core.RequestEvent) error {
	id, err := pathID(e)
	if err != nil {
		return err
	}
	if _, err := h.queries.ListingInfo(id); err != nil {
		return respondError(e, err)
	}
	entries, err := h.history.History(e.Request.Context(), id)
	if err != nil {
		return apis.NewInternalServerError("Failed to load history", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": entries})
}
