package production

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/ledger"
)

// ProductLine is a finished good produced by a run.
type ProductLine struct {
	ProductID int64
	SizeID    int64
	ColorID   int64
	Quantity  decimal.Decimal
	Cost      decimal.Decimal
}

// MaterialLine overrides the BOM derived consumption of one material.
type MaterialLine struct {
	MaterialID int64
	Quantity   decimal.Decimal
}

// CostInput allocates a manufacturing cost category to a run.
type CostInput struct {
	ManufacturingCostID int64
	Cost                decimal.Decimal
}

// CreateInput describes a production run to book.
type CreateInput struct {
	Products        []ProductLine
	RawMaterials    []MaterialLine
	Status          ledger.ManufacturingStatus
	ProductionDate  time.Time
	OrderID         *int64
	ProductionCosts []CostInput
	IdempotencyKey  string
}

// CostItem is overhead allocated to a production run.
type CostItem struct {
	ID                  int64           `json:"id"`
	TransactionID       int64           `json:"transaction_id"`
	ManufacturingCostID int64           `json:"manufacturing_cost_id"`
	Name                string          `json:"name"`
	Cost                decimal.Decimal `json:"cost"`
}

// CostCategory is a kind of manufacturing overhead (labour, electricity...).
type CostCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Run is a production transaction with its overhead.
type Run struct {
	ledger.Transaction
	CostItems []CostItem `json:"cost_items"`
}

// Status returns the workshop stage of the run.
func (r Run) Status() ledger.ManufacturingStatus {
	if r.ManufacturingStatus == nil {
		return ""
	}
	return *r.ManufacturingStatus
}

// StatusMeta is what a client needs to move a run forward.
type StatusMeta struct {
	ID               int64                        `json:"id"`
	Status           ledger.ManufacturingStatus   `json:"status"`
	NextStatuses     []ledger.ManufacturingStatus `json:"next_statuses"`
	UnallocatedCosts []CostCategory               `json:"unallocated_costs"`
	TotalCost        decimal.Decimal              `json:"total_cost"`
}
