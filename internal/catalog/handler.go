package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-erp/atelier/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/products/{id}/bom", h.BOM)
	r.Get("/products/{id}/requirements", h.Requirements)
	return r
}

func (h *Handler) BOM(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse product id", err)
		return
	}
	lines, err := h.service.BOM(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "load bom", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func (h *Handler) Requirements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse product id", err)
		return
	}
	qty, err := httpx.QueryDecimal(r, "quantity")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse quantity", err)
		return
	}
	reqs, err := h.service.Requirements(r.Context(), id, qty)
	if err != nil {
		httpx.Fail(w, r, h.logger, "material requirements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reqs)
}
