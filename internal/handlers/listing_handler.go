package handlers

import (
	"net/http"

	"ticket-market/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"go.uber.org/zap"
)

// ListingHandler serves the seller surface.
type ListingHandler struct {
	market *services.Market
	logger *zap.Logger
}

func NewListingHandler(market *services.Market, logger *zap.Logger) *ListingHandler {
	return &ListingHandler{market: market, logger: logger}
}

// CreateListing - List tickets for direct sale, or for auction when an auction window is given
func (h *ListingHandler) CreateListing(e *core.RequestEvent) error {
	caller, err := requireAuth(e)
	if err != nil {
		return err
	}

	var req services.CreateListingRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	req.Seller = caller

	id, err := h.market.Registry.CreateListing(e.Request.Context(), req)
	if err != nil {
		return respondError(e, err)
	}

	h.logger.Info("listing created", zap.Uint64("listing_id", id), zap.String("seller", caller))
	return e.JSON(http.StatusCreated, map[string]any{"listing_id": id})
}

// Unlist - Withdraw an unsold listing
func (h *ListingHandler) Unlist(e *core.RequestEvent) error {
	caller, err := requireAuth(e)
	if err != nil {
		return err
	}
	id, err := pathID(e)
	if err != nil {
		return err
	}

	if err := h.market.Registry.Unlist(e.Request.Context(), id, caller); err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Listing removed"})
}

// AcceptHighestBid - Settle an ended auction to its highest bidder
func (h *ListingHandler) AcceptHighestBid(e *core.RequestEvent) error {
	caller, err := requireAuth(e)
	if err != nil {
		return err
	}
	id, err := pathID(e)
	if err != nil {
		return err
	}

	receipt, err := h.market.Auctions.AcceptHighestBid(e.Request.Context(), id, caller)
	if err != nil {
		return respondError(e, err)
	}

	h.logger.Info("auction settled",
		zap.Uint64("listing_id", id),
		zap.String("winner", receipt.Buyer),
		zap.String("amount", receipt.Total.String()),
	)
	return e.JSON(http.StatusOK, receipt)
}
