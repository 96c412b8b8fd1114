package handlers

import (
	"net/http"

	"ticket-market/internal/services/ledger"
	"ticket-market/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// DevHandler funds accounts on the in-memory ledger. Only registered in
// development.
type DevHandler struct {
	ledger *ledger.Memory
	engine string
}

func NewDevHandler(mem *ledger.Memory, engineAccount string) *DevHandler {
	return &DevHandler{ledger: mem, engine: engineAccount}
}

type mintRequest struct {
	Account  string          `json:"account"`
	Currency models.Currency `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// Mint - Credit an account, approving the engine to pull tokens
func (h *DevHandler) Mint(e *core.RequestEvent) error {
	var req mintRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Account == "" || !req.Amount.IsPositive() {
		return apis.NewBadRequestError("Account and a positive amount are required", nil)
	}

	h.ledger.Mint(req.Currency, req.Account, req.Amount)
	if !req.Currency.IsNative() {
		h.ledger.Approve(req.Currency.Token, req.Account, h.engine, req.Amount)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"account":  req.Account,
		"currency": req.Currency,
		"balance":  h.ledger.BalanceOf(req.Currency, req.Account),
	})
}

// Balance - Ledger balance of an account
func (h *DevHandler) Balance(e *core.RequestEvent) error {
	c, err := models.ParseCurrency(e.Request.URL.Query().Get("currency"))
	if err != nil {
		return apis.NewBadRequestError("Invalid currency", err)
	}
	account := e.Request.PathValue("account")
	return e.JSON(http.StatusOK, map[string]any{
		"account":  account,
		"currency": c,
		"balance":  h.ledger.BalanceOf(c, account),
	})
}
