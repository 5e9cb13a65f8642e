package ledger_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/atelier-erp/atelier/internal/ledger"
)

func newTestRouter(f *fixture) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Route("/ledger", ledger.NewHandler(logger, f.svc).MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerPurchaseThenStock(t *testing.T) {
	f := newFixture()
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/ledger/purchases", `{"supplier_id":4,"lines":[{"material_id":1,"quantity":"2.5","cost":"8"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tx ledger.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tx))
	require.Equal(t, ledger.TypePurchase, tx.Type)
	require.Equal(t, int64(4), *tx.SupplierID)

	rec = do(t, h, http.MethodGet, "/ledger/stock/materials/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var level ledger.StockLevel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &level))
	require.True(t, level.Quantity.Equal(d("2.5")))
	require.True(t, level.LatestCost.Equal(d("8")))
}

func TestHandlerInsufficientStockIsBadRequest(t *testing.T) {
	f := newFixture()
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/ledger/invoices", `{"customer_id":1,"lines":[{"product_id":10,"size_id":42,"color_id":3,"quantity":2,"cost":50}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Insufficient Stock", body["title"])
	require.Equal(t, "2", body["required"])
	require.Equal(t, "0", body["remaining"])
}

func TestHandlerValidation(t *testing.T) {
	f := newFixture()
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/ledger/purchases", `{"lines":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Lines")

	rec = do(t, h, http.MethodPost, "/ledger/purchases", `{"lines":[{"material_id":1,"quantity":1}],"note":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/ledger/transactions/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerOrderLifecycle(t *testing.T) {
	f := newFixture()
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/ledger/orders", `{"order_type":"manufacturing","lines":[{"product_id":10,"size_id":42,"quantity":3,"cost":70}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order ledger.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	require.Equal(t, ledger.TypeManufacturing, order.Type)

	rec = do(t, h, http.MethodPatch, "/ledger/orders/"+itoa(order.ID)+"/status", `{"status":"processing"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPatch, "/ledger/orders/"+itoa(order.ID)+"/status", `{"status":"pending"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/ledger/transactions/"+itoa(order.ID), "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/ledger/transactions/"+itoa(order.ID), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerIdempotencyConflict(t *testing.T) {
	f := newFixture()
	h := newTestRouter(f)
	body := `{"lines":[{"material_id":1,"quantity":1,"cost":1}]}`
	key := "2b1e1c4e-7f43-4c4a-9d0e-3c7f6b0a9e11"

	rec := do(t, h, http.MethodPost, "/ledger/opening-stock", body, "Idempotency-Key", key)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/ledger/opening-stock", body, "Idempotency-Key", key)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerProductStockUnknownSize(t *testing.T) {
	f := newFixture()
	h := newTestRouter(f)
	rec := do(t, h, http.MethodGet, "/ledger/stock/products/10/sizes/41?color_id=3", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/ledger/stock/products/10/sizes/42?color_id=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerListTransactions(t *testing.T) {
	f := newFixture()
	h := newTestRouter(f)
	dates := []string{"2024-03-01T00:00:00Z", "2024-03-02T00:00:00Z", "2024-03-03T00:00:00Z"}
	for _, date := range dates {
		body := `{"transaction_date":"` + date + `","lines":[{"material_id":1,"quantity":"1","cost":"2"}]}`
		rec := do(t, h, http.MethodPost, "/ledger/purchases", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := do(t, h, http.MethodPost, "/ledger/adjustments", `{"lines":[{"material_id":2,"quantity":"1","cost":"1"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/ledger/transactions?type=purchase&per_page=2&page=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Data []ledger.Transaction `json:"data"`
		Pagination struct {
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 2)
	require.Equal(t, 3, page.Pagination.Total)
	require.Equal(t, 2, page.Pagination.TotalPages)
	require.Equal(t, "2024-03-03", page.Data[0].Date.Format("2006-01-02"))

	rec = do(t, h, http.MethodGet, "/ledger/transactions?type=bogus", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
