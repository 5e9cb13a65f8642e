package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ResolveProductSize returns the product_sizes row joining productID and sizeID.
func (s *Service) ResolveProductSize(ctx context.Context, productID, sizeID int64) (int64, error) {
	id, err := s.repo.ProductSizeID(ctx, productID, sizeID)
	if errors.Is(err, ErrNotFound) {
		return 0, shared.Referential("product_size", fmt.Sprintf("product %d has no size %d", productID, sizeID))
	}
	if err != nil {
		return 0, shared.StoreFailure(err)
	}
	return id, nil
}

func (s *Service) ColorExists(ctx context.Context, colorID int64) (bool, error) {
	return s.repo.ColorExists(ctx, colorID)
}

// MaterialName returns the display name of a material.
func (s *Service) MaterialName(ctx context.Context, materialID int64) (string, error) {
	m, err := s.repo.Material(ctx, materialID)
	if errors.Is(err, ErrNotFound) {
		return "", shared.Referential("material", fmt.Sprintf("material %d does not exist", materialID))
	}
	if err != nil {
		return "", shared.StoreFailure(err)
	}
	return m.Name, nil
}

// BOM lists the per-unit material consumption of a product.
func (s *Service) BOM(ctx context.Context, productID int64) ([]BOMLine, error) {
	ok, err := s.repo.ProductExists(ctx, productID)
	if err != nil {
		return nil, shared.StoreFailure(err)
	}
	if !ok {
		return nil, shared.NotFound("product", productID)
	}
	lines, err := s.repo.BOM(ctx, productID)
	if err != nil {
		return nil, shared.StoreFailure(err)
	}
	return lines, nil
}

// Requirements multiplies the BOM of productID by quantity. Materials listed twice are summed.
func (s *Service) Requirements(ctx context.Context, productID int64, quantity decimal.Decimal) ([]Requirement, error) {
	if !quantity.IsPositive() {
		return nil, shared.Validation("quantity", "must be greater than zero")
	}
	lines, err := s.BOM(ctx, productID)
	if err != nil {
		return nil, err
	}
	return Multiply(lines, quantity), nil
}

// Multiply scales BOM lines by quantity keeping first-seen material order.
func Multiply(lines []BOMLine, quantity decimal.Decimal) []Requirement {
	index := make(map[int64]int, len(lines))
	out := make([]Requirement, 0, len(lines))
	for _, line := range lines {
		need := line.Quantity.Mul(quantity)
		if i, ok := index[line.MaterialID]; ok {
			out[i].Quantity = out[i].Quantity.Add(need)
			continue
		}
		index[line.MaterialID] = len(out)
		out = append(out, Requirement{MaterialID: line.MaterialID, MaterialName: line.MaterialName, Quantity: need})
	}
	return out
}
