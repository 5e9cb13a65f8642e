package ledger

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atelier-erp/atelier/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/opening-stock", h.handleEvent(EventOpeningStock))
	r.Post("/purchases", h.handleEvent(EventPurchase))
	r.Post("/adjustments", h.handleEvent(EventAdjustment))
	r.Post("/invoices", h.handleEvent(EventInvoice))
	r.Post("/orders", h.handleOrder)
	r.Patch("/orders/{id}/status", h.handleSaleStatus)
	r.Get("/transactions", h.handleListTransactions)
	r.Get("/transactions/{id}", h.handleGetTransaction)
	r.Delete("/transactions/{id}", h.handleDeleteTransaction)
	r.Get("/stock/materials/{id}", h.handleMaterialStock)
	r.Get("/stock/products/{productID}/sizes/{sizeID}", h.handleProductStock)
}

func (h *Handler) handleEvent(kind EventKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EventRequest
		if err := httpx.Bind(r, h.validate, &req); err != nil {
			httpx.Fail(w, r, h.logger, "decode ledger event", err)
			return
		}
		h.record(w, r, req.toEvent(kind, r.Header.Get(httpx.IdempotencyHeader)))
	}
}

func (h *Handler) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.Fail(w, r, h.logger, "decode order", err)
		return
	}
	h.record(w, r, req.toEvent(req.kind(), r.Header.Get(httpx.IdempotencyHeader)))
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request, ev Event) {
	tx, err := h.service.RecordEvent(r.Context(), ev)
	if err != nil {
		httpx.Fail(w, r, h.logger, "record ledger event", err)
		return
	}
	h.logger.Info("ledger event recorded",
		slog.String("kind", string(ev.Kind)),
		slog.String("code", tx.Code),
		slog.Int("lines", len(tx.Items)))
	httpx.JSON(w, http.StatusCreated, tx)
}

func (h *Handler) handleSaleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse order id", err)
		return
	}
	var req StatusRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.Fail(w, r, h.logger, "decode sale status", err)
		return
	}
	tx, err := h.service.UpdateSaleStatus(r.Context(), id, SaleStatus(req.Status))
	if err != nil {
		httpx.Fail(w, r, h.logger, "update sale status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := httpx.QueryInt64(r, "page")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse page", err)
		return
	}
	perPage, err := httpx.QueryInt64(r, "per_page")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse per_page", err)
		return
	}
	items, pagination, err := h.service.ListTransactions(r.Context(), TransactionFilter{
		Type:    TransactionType(r.URL.Query().Get("type")),
		Page:    int(page),
		PerPage: int(perPage),
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, "list transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": pagination})
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse transaction id", err)
		return
	}
	tx, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "get transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

func (h *Handler) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse transaction id", err)
		return
	}
	if err := h.service.DeleteTransaction(r.Context(), id); err != nil {
		httpx.Fail(w, r, h.logger, "delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMaterialStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse material id", err)
		return
	}
	level, err := h.service.CurrentStock(r.Context(), MaterialKey(id))
	if err != nil {
		httpx.Fail(w, r, h.logger, "material stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) handleProductStock(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.URLInt64(r, "productID")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse product id", err)
		return
	}
	sizeID, err := httpx.URLInt64(r, "sizeID")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse size id", err)
		return
	}
	colorID, err := httpx.QueryInt64(r, "color_id")
	if err != nil {
		httpx.Fail(w, r, h.logger, "parse color id", err)
		return
	}
	level, err := h.service.ProductStock(r.Context(), productID, sizeID, colorID)
	if err != nil {
		httpx.Fail(w, r, h.logger, "product stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}
