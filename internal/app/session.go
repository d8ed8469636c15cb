package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/tally/internal/platform/httpx"
	"github.com/odyssey-erp/tally/internal/shared"
)

// BindSessionRequest is the body of POST /session.
type BindSessionRequest struct {
	CompanyID int64 `json:"company_id" validate:"required,gt=0"`
	UserID    int64 `json:"user_id" validate:"required,gt=0"`
}

// SessionHandler binds the caller's session to a company and user.
type SessionHandler struct {
	logger  *slog.Logger
	manager *shared.SessionManager
}

// NewSessionHandler constructs the session handler.
func NewSessionHandler(logger *slog.Logger, manager *shared.SessionManager) *SessionHandler {
	return &SessionHandler{logger: logger, manager: manager}
}

// MountRoutes attaches the session routes.
func (h *SessionHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.Show)
	r.Post("/", h.Bind)
	r.Delete("/", h.Destroy)
}

func (h *SessionHandler) Show(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenant)
}

func (h *SessionHandler) Bind(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, shared.ErrNoTenant)
		return
	}
	var req BindSessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenant := shared.Tenant{CompanyID: req.CompanyID, UserID: req.UserID}
	if err := sess.Bind(tenant); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("session bound", slog.Int64("company_id", tenant.CompanyID), slog.Int64("user_id", tenant.UserID))
	httpx.JSON(w, http.StatusOK, tenant)
}

func (h *SessionHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	h.manager.Destroy(shared.SessionFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
