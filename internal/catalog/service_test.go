package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-erp/atelier/internal/shared"
)

type fakeRepo struct {
	sizes     map[[2]int64]int64
	colors    map[int64]bool
	materials map[int64]Material
	boms      map[int64][]BOMLine
	err       error
}

func (f *fakeRepo) ProductSizeID(_ context.Context, productID, sizeID int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	id, ok := f.sizes[[2]int64{productID, sizeID}]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (f *fakeRepo) ColorExists(_ context.Context, colorID int64) (bool, error) {
	return f.colors[colorID], f.err
}

func (f *fakeRepo) ProductExists(_ context.Context, productID int64) (bool, error) {
	_, ok := f.boms[productID]
	return ok, f.err
}

func (f *fakeRepo) Material(_ context.Context, id int64) (Material, error) {
	m, ok := f.materials[id]
	if !ok {
		return Material{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeRepo) BOM(_ context.Context, productID int64) ([]BOMLine, error) {
	return f.boms[productID], nil
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sizes:     map[[2]int64]int64{{1, 40}: 7},
		colors:    map[int64]bool{2: true},
		materials: map[int64]Material{5: {ID: 5, Name: "leather"}},
		boms: map[int64][]BOMLine{
			1: {
				{MaterialID: 5, MaterialName: "leather", Quantity: decimal.RequireFromString("0.75")},
				{MaterialID: 6, MaterialName: "sole", Quantity: decimal.NewFromInt(2)},
				{MaterialID: 5, MaterialName: "leather", Quantity: decimal.RequireFromString("0.25")},
			},
			2: {},
		},
	}
}

func TestResolveProductSize(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	id, err := svc.ResolveProductSize(ctx, 1, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = svc.ResolveProductSize(ctx, 1, 41)
	require.True(t, shared.IsKind(err, shared.KindReferential))
	assert.Contains(t, err.Error(), "product 1 has no size 41")
}

func TestResolveProductSizeStoreFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("connection reset")
	_, err := NewService(repo).ResolveProductSize(context.Background(), 1, 40)
	require.True(t, shared.IsKind(err, shared.KindStoreFailure))
}

func TestMaterialName(t *testing.T) {
	svc := NewService(newFakeRepo())
	name, err := svc.MaterialName(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "leather", name)

	_, err = svc.MaterialName(context.Background(), 9)
	require.True(t, shared.IsKind(err, shared.KindReferential))
}

func TestRequirementsMultipliesBOM(t *testing.T) {
	svc := NewService(newFakeRepo())
	reqs, err := svc.Requirements(context.Background(), 1, decimal.NewFromInt(4))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, int64(5), reqs[0].MaterialID)
	assert.True(t, reqs[0].Quantity.Equal(decimal.NewFromInt(4)))
	assert.True(t, reqs[1].Quantity.Equal(decimal.NewFromInt(8)))

	_, err = svc.Requirements(context.Background(), 1, decimal.Zero)
	require.True(t, shared.IsKind(err, shared.KindValidation))

	_, err = svc.Requirements(context.Background(), 99, decimal.NewFromInt(1))
	require.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestHandlerRequirements(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(NewService(newFakeRepo()), logger).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/1/requirements?quantity=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"material_name":"sole"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/1/requirements?quantity=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/99/bom", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
