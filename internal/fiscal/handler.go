package fiscal

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/tally/internal/platform/httpx"
	"github.com/odyssey-erp/tally/internal/shared"
)

// UpdateConfigRequest is the body of PUT /fiscal-config.
type UpdateConfigRequest struct {
	IVARate      *decimal.Decimal `json:"iva_rate" validate:"required"`
	IVAEnabled   *bool            `json:"iva_enabled" validate:"required"`
	TaxMode      string           `json:"tax_calculation_mode" validate:"required,oneof=INCLUDED EXCLUDED"`
	RoundingRule string           `json:"price_rounding_rule" validate:"required"`
}

// AmountRequest is the body of POST /fiscal-config/tax.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// RoundRequest is the body of POST /fiscal-config/round.
type RoundRequest struct {
	Price decimal.Decimal `json:"price"`
}

// RoundResponse is returned by POST /fiscal-config/round.
type RoundResponse struct {
	Rule    RoundingRule    `json:"rule"`
	Price   decimal.Decimal `json:"price"`
	Rounded decimal.Decimal `json:"rounded"`
}

// Handler exposes the tenant fiscal configuration over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the fiscal HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches the fiscal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.Show)
	r.Put("/", h.Update)
	r.Post("/tax", h.Tax)
	r.Post("/round", h.Round)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	resolver, ok := h.resolver(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, resolver.Config())
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateConfigRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	saved, err := h.service.Update(r.Context(), Config{
		CompanyID:    tenant.CompanyID,
		IVARate:      *req.IVARate,
		IVAEnabled:   *req.IVAEnabled,
		TaxMode:      TaxMode(req.TaxMode),
		RoundingRule: RoundingRule(req.RoundingRule),
	}, tenant.UserID)
	if err != nil {
		h.logger.Error("update fiscal config", slog.Int64("company_id", tenant.CompanyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) Tax(w http.ResponseWriter, r *http.Request) {
	resolver, ok := h.resolver(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resolver.CalculateTax(req.Amount))
}

func (h *Handler) Round(w http.ResponseWriter, r *http.Request) {
	resolver, ok := h.resolver(w, r)
	if !ok {
		return
	}
	var req RoundRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cfg := resolver.Config()
	httpx.JSON(w, http.StatusOK, RoundResponse{
		Rule:    cfg.RoundingRule,
		Price:   req.Price,
		Rounded: resolver.Round(req.Price),
	})
}

func (h *Handler) resolver(w http.ResponseWriter, r *http.Request) (*Resolver, bool) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	resolver, err := h.service.Resolver(r.Context(), tenant.CompanyID)
	if err != nil {
		h.logger.Error("load fiscal config", slog.Int64("company_id", tenant.CompanyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return nil, false
	}
	return resolver, true
}
