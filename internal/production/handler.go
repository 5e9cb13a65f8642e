package production

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atelier-erp/atelier/internal/ledger"
	"github.com/atelier-erp/atelier/internal/platform/httpx"
)

// Handler wires HTTP endpoints for production runs.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}/status", h.handleStatus)
	r.Delete("/{id}", h.handleDelete)
	r.Get("/{id}/cost", h.handleCost)
	r.Get("/{id}/cost.xlsx", h.handleCostSheet)
	r.Get("/{id}/meta", h.handleMeta)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.Fail(w, r, h.logger, "decode production", err)
		return
	}
	run, err := h.service.Create(r.Context(), req.toInput(r.Header.Get(httpx.IdempotencyHeader)))
	if err != nil {
		httpx.Fail(w, r, h.logger, "create production", err)
		return
	}
	h.logger.Info("production created",
		slog.String("code", run.Code),
		slog.String("status", string(run.Status())),
		slog.Int("lines", len(run.Items)))
	httpx.JSON(w, http.StatusCreated, run)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse production id", err)
		return
	}
	run, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "get production", err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse production id", err)
		return
	}
	var req StatusRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.Fail(w, r, h.logger, "decode production status", err)
		return
	}
	tx, err := h.service.UpdateStatus(r.Context(), id, ledger.ManufacturingStatus(req.Status))
	if err != nil {
		httpx.Fail(w, r, h.logger, "update production status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse production id", err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Fail(w, r, h.logger, "delete production", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse production id", err)
		return
	}
	total, err := h.service.TotalCost(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "production cost", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "total_cost": total})
}

func (h *Handler) handleCostSheet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse production id", err)
		return
	}
	var buf bytes.Buffer
	if err := h.service.CostSheet(r.Context(), id, &buf); err != nil {
		httpx.Fail(w, r, h.logger, "production cost sheet", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="production_%d_cost.xlsx"`, id))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleMeta(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse production id", err)
		return
	}
	meta, err := h.service.StatusMeta(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "production meta", err)
		return
	}
	httpx.JSON(w, http.StatusOK, meta)
}
