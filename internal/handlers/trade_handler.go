package handlers

import (
	"net/http"

	"ticket-market/internal/services"
	"ticket-market/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// TradeHandler serves the buyer and bidder surface.
type TradeHandler struct {
	market *services.Market
}

func NewTradeHandler(market *services.Market) *TradeHandler {
	return &TradeHandler{market: market}
}

type buyRequest struct {
	Quantity uint64        `json:"quantity"`
	Tender   models.Tender `json:"tender"`
}

// Buy - Purchase units of a direct-sale listing
func (h *TradeHandler) Buy(e *core.RequestEvent) error {
	caller, err := requireAuth(e)
	if err != nil {
		return err
	}
	id, err := pathID(e)
	if err != nil {
		return err
	}

	var req buyRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	receipt, err := h.market.Sales.Buy(e.Request.Context(), services.BuyRequest{
		ListingID: id,
		Quantity:  req.Quantity,
		Buyer:     caller,
		Tender:    req.Tender,
	})
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, receipt)
}

type bidRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Tender models.Tender   `json:"tender"`
}

// PlaceBid - Escrow a new highest bid
func (h *TradeHandler) PlaceBid(e *core.RequestEvent) error {
	caller, err := requireAuth(e)
	if err != nil {
		return err
	}
	id, err := pathID(e)
	if err != nil {
		return err
	}

	var req bidRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	err = h.market.Auctions.PlaceBid(e.Request.Context(), services.BidRequest{
		ListingID: id,
		Bidder:    caller,
		Amount:    req.Amount,
		Tender:    req.Tender,
	})
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Bid placed"})
}

// WithdrawBid - Take back a bid that is no longer the highest
func (h *TradeHandler) WithdrawBid(e *core.RequestEvent) error {
	caller, err := requireAuth(e)
	if err != nil {
		return err
	}
	id, err := pathID(e)
	if err != nil {
		return err
	}

	if err := h.market.Auctions.WithdrawBid(e.Request.Context(), id, caller); err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Bid withdrawn"})
}
