package documents

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/tally/internal/platform/httpx"
	"github.com/odyssey-erp/tally/internal/shared"
)

// Handler serves one document kind over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	kind    Kind
	locale  string
}

// NewHandler constructs a handler for kind. locale formats display amounts
// when the request carries no Accept-Language.
func NewHandler(logger *slog.Logger, service *Service, kind Kind, locale string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger.With(slog.String("kind", string(kind))),
		service: service,
		kind:    kind,
		locale:  locale,
	}
}

type listResponse struct {
	Items      []Summary         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	filter := ListFilter{CompanyID: tenant.CompanyID, Kind: h.kind, Limit: limit, Offset: offset}
	if raw := q.Get("status"); raw != "" {
		status := Status(raw)
		if !ValidStatus(h.kind, status) {
			httpx.RespondError(w, httpx.FieldErrors{"status": "is not a " + string(h.kind) + " status"})
			return
		}
		filter.Status = &status
	}

	items, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list documents", slog.Int64("company_id", tenant.CompanyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Summary{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Pagination: page})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), tenant, h.kind, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, doc)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, ok := decodeSave(w, r, true)
	if !ok {
		return
	}
	doc, err := h.service.Create(r.Context(), tenant, h.kind, req)
	if err != nil {
		h.logger.Warn("create document", slog.Int64("company_id", tenant.CompanyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.respond(w, r, http.StatusCreated, doc)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	req, ok := decodeSave(w, r, true)
	if !ok {
		return
	}
	doc, err := h.service.Update(r.Context(), tenant, h.kind, id, req)
	if err != nil {
		h.logger.Warn("update document", slog.Int64("company_id", tenant.CompanyID), slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, doc)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, ok := decodeSave(w, r, false)
	if !ok {
		return
	}
	doc, err := h.service.Preview(r.Context(), tenant, h.kind, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, doc)
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Transition(r.Context(), tenant, h.kind, id, req.Status)
	if err != nil {
		h.logger.Warn("document transition", slog.Int64("id", id), slog.String("status", string(req.Status)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, doc)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (shared.Tenant, int64, bool) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return shared.Tenant{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, ErrNotFound)
		return shared.Tenant{}, 0, false
	}
	return tenant, id, true
}

func decodeSave(w http.ResponseWriter, r *http.Request, strict bool) (SaveRequest, bool) {
	var req SaveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return SaveRequest{}, false
	}
	if strict {
		if err := httpx.Validate(req); err != nil {
			httpx.RespondError(w, err)
			return SaveRequest{}, false
		}
	}
	return req, true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, doc Document) {
	resp := DocumentResponse{Document: doc}
	display, err := NewDisplay(doc, h.lang(r))
	if err != nil {
		h.logger.Error("format document amounts", slog.Int64("id", doc.ID), slog.String("currency", doc.Currency), slog.Any("error", err))
	} else {
		resp.Display = &display
	}
	httpx.JSON(w, status, resp)
}

func (h *Handler) lang(r *http.Request) string {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return h.locale
	}
	return tags[0].String()
}
