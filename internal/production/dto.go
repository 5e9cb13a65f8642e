package production

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/ledger"
)

type productRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	SizeID    int64           `json:"size_id" validate:"required,gt=0"`
	ColorID   int64           `json:"color_id" validate:"omitempty,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	Cost      decimal.Decimal `json:"cost"`
}

type rawMaterialRequest struct {
	MaterialID int64           `json:"material_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type costRequest struct {
	ManufacturingCostID int64           `json:"manufacturing_cost_id" validate:"required,gt=0"`
	Cost                decimal.Decimal `json:"cost"`
}

// CreateRequest is the body of POST /production.
type CreateRequest struct {
	Products        []productRequest     `json:"products" validate:"required,min=1,dive"`
	RawMaterials    []rawMaterialRequest `json:"raw_materials" validate:"omitempty,dive"`
	Status          string               `json:"status" validate:"omitempty,oneof=cutting sticking lasting finished"`
	ProductionDate  *time.Time           `json:"production_date"`
	OrderID         *int64               `json:"order_id" validate:"omitempty,gt=0"`
	ProductionCosts []costRequest        `json:"production_costs" validate:"omitempty,dive"`
}

// StatusRequest moves a run to a later stage.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=cutting sticking lasting finished"`
}

func (r CreateRequest) toInput(idempotencyKey string) CreateInput {
	in := CreateInput{
		Status:         ledger.ManufacturingStatus(r.Status),
		OrderID:        r.OrderID,
		IdempotencyKey: idempotencyKey,
	}
	if r.ProductionDate != nil {
		in.ProductionDate = *r.ProductionDate
	}
	for _, p := range r.Products {
		in.Products = append(in.Products, ProductLine{ProductID: p.ProductID, SizeID: p.SizeID, ColorID: p.ColorID, Quantity: p.Quantity, Cost: p.Cost})
	}
	for _, m := range r.RawMaterials {
		in.RawMaterials = append(in.RawMaterials, MaterialLine{MaterialID: m.MaterialID, Quantity: m.Quantity})
	}
	for _, c := range r.ProductionCosts {
		in.ProductionCosts = append(in.ProductionCosts, CostInput{ManufacturingCostID: c.ManufacturingCostID, Cost: c.Cost})
	}
	return in
}
