package handlers

import (
	"context"
	"net/http"

	"ticket-market/internal/services"
	"ticket-market/models"
	"ticket-market/security"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"go.uber.org/zap"
)

// AdminKeyHeader carries the operator key checked against the configured bcrypt hash.
const AdminKeyHeader = "X-Admin-Key"

// JournalCounter reports how many events the durable journal holds.
type JournalCounter interface {
	Len(ctx context.Context) (int64, error)
}

// AdminHandler serves the operator surface. Every route acts as the
// configured admin account once the key checks out.
type AdminHandler struct {
	market       *services.Market
	journal      JournalCounter
	adminAccount string
	adminKeyHash string
	logger       *zap.Logger
}

func NewAdminHandler(market *services.Market, journal JournalCounter, adminAccount, adminKeyHash string, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		market:       market,
		journal:      journal,
		adminAccount: adminAccount,
		adminKeyHash: adminKeyHash,
		logger:       logger,
	}
}

// RequireAdminKey is bound ahead of every admin route.
func (h *AdminHandler) RequireAdminKey(e *core.RequestEvent) error {
	if !security.CompareAdminKey(h.adminKeyHash, e.Request.Header.Get(AdminKeyHeader)) {
		h.logger.Warn("admin key rejected", zap.String("ip", e.RealIP()), zap.String("path", e.Request.URL.Path))
		return apis.NewForbiddenError("Invalid admin key", nil)
	}
	return e.Next()
}

// SetCurrencyApproval - Approve or revoke a currency for new listings
func (h *AdminHandler) SetCurrencyApproval(e *core.RequestEvent) error {
	c, err := models.ParseCurrency(e.Request.PathValue("currency"))
	if err != nil {
		return apis.NewBadRequestError("Invalid currency", err)
	}

	var req struct {
		Approved bool `json:"approved"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.market.Registry.SetCurrencyApproval(e.Request.Context(), h.adminAccount, c, req.Approved); err != nil {
		return respondError(e, err)
	}

	h.logger.Info("currency approval changed", zap.String("currency", c.String()), zap.Bool("approved", req.Approved))
	return e.JSON(http.StatusOK, map[string]any{"currency": c, "approved": req.Approved})
}

// WithdrawNativeFees - Pay the accrued native fees to the admin
func (h *AdminHandler) WithdrawNativeFees(e *core.RequestEvent) error {
	amount, err := h.market.Fees.WithdrawNative(e.Request.Context(), h.adminAccount)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"currency": models.Native(), "amount": amount})
}

// WithdrawTokenFees - Pay the accrued fees of one token to the admin
func (h *AdminHandler) WithdrawTokenFees(e *core.RequestEvent) error {
	token := e.Request.PathValue("token")
	if token == "" {
		return apis.NewBadRequestError("Token is required", nil)
	}

	amount, err := h.market.Fees.WithdrawToken(e.Request.Context(), h.adminAccount, token)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"currency": models.Token(token), "amount": amount})
}

// Reconcile - Compare custody balances with escrow and fees owed
func (h *AdminHandler) Reconcile(e *core.RequestEvent) error {
	recs, err := h.market.Reconcile(e.Request.Context())
	if err != nil {
		return apis.NewInternalServerError("Failed to reconcile", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": recs})
}

// JournalStats - Size of the durable event journal
func (h *AdminHandler) JournalStats(e *core.RequestEvent) error {
	n, err := h.journal.Len(e.Request.Context())
	if err != nil {
		return apis.NewInternalServerError("Failed to read journal", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"events": n})
}
