package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates ledger events.
type TransactionType string

const (
	// TypeOpeningStock books initial stock for an entity.
	TypeOpeningStock TransactionType = "opening_stock"
	// TypePurchase books stock bought from a supplier.
	TypePurchase TransactionType = "purchase"
	// TypeSale books an invoice or a sales order.
	TypeSale TransactionType = "sale"
	// TypeProduction books a production run.
	TypeProduction TransactionType = "production"
	// TypeManufacturing books a manufacturing order awaiting production.
	TypeManufacturing TransactionType = "manufacturing"
	// TypeAdjustment books a manual stock correction.
	TypeAdjustment TransactionType = "adjustment"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeOpeningStock, TypePurchase, TypeSale, TypeProduction, TypeManufacturing, TypeAdjustment:
		return true
	}
	return false
}

// StockBearing reports whether remaining_quantity of items of this type counts as stock.
func (t TransactionType) StockBearing() bool {
	switch t {
	case TypeOpeningStock, TypePurchase, TypeProduction, TypeAdjustment:
		return true
	}
	return false
}

// CostBearing reports whether item cost of this type is an acquisition cost.
func (t TransactionType) CostBearing() bool {
	switch t {
	case TypeOpeningStock, TypePurchase, TypeAdjustment:
		return true
	}
	return false
}

// SaleStatus tracks sales and manufacturing orders.
type SaleStatus string

const (
	SaleStatusPending    SaleStatus = "pending"
	SaleStatusProcessing SaleStatus = "processing"
	SaleStatusFulfilled  SaleStatus = "fulfilled"
)

var saleStatusRank = map[SaleStatus]int{
	SaleStatusPending:    0,
	SaleStatusProcessing: 1,
	SaleStatusFulfilled:  2,
}

// Valid reports whether s is a known sale status.
func (s SaleStatus) Valid() bool {
	_, ok := saleStatusRank[s]
	return ok
}

// CanAdvanceTo reports whether the order may move from s to next. Statuses only move forward.
func (s SaleStatus) CanAdvanceTo(next SaleStatus) bool {
	from, ok1 := saleStatusRank[s]
	to, ok2 := saleStatusRank[next]
	return ok1 && ok2 && to > from
}

// ManufacturingStatus tracks the workshop stage of a production run.
type ManufacturingStatus string

const (
	StatusCutting  ManufacturingStatus = "cutting"
	StatusSticking ManufacturingStatus = "sticking"
	StatusLasting  ManufacturingStatus = "lasting"
	StatusFinished ManufacturingStatus = "finished"
)

// ManufacturingStages lists stages in workshop order.
var ManufacturingStages = []ManufacturingStatus{StatusCutting, StatusSticking, StatusLasting, StatusFinished}

func (s ManufacturingStatus) rank() int {
	for i, stage := range ManufacturingStages {
		if stage == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s ManufacturingStatus) Valid() bool {
	return s.rank() >= 0
}

// CanAdvanceTo reports whether a run in stage s may move to next.
func (s ManufacturingStatus) CanAdvanceTo(next ManufacturingStatus) bool {
	from, to := s.rank(), next.rank()
	return from >= 0 && to > from
}

// Next lists the stages reachable from s.
func (s ManufacturingStatus) Next() []ManufacturingStatus {
	from := s.rank()
	if from < 0 {
		return nil
	}
	return append([]ManufacturingStatus(nil), ManufacturingStages[from+1:]...)
}

// Transaction is the ledger header.
type Transaction struct {
	ID                  int64                `json:"id"`
	Code                string               `json:"code"`
	Type                TransactionType      `json:"transaction_type"`
	Date                time.Time            `json:"transaction_date"`
	CustomerID          *int64               `json:"customer_id,omitempty"`
	SupplierID          *int64               `json:"supplier_id,omitempty"`
	SaleStatus          *SaleStatus          `json:"sale_status,omitempty"`
	ManufacturingStatus *ManufacturingStatus `json:"manufacturing_status,omitempty"`
	OrderID             *int64               `json:"order_id,omitempty"`
	PaymentMethod       string               `json:"payment_method,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	Items               []TransactionItem    `json:"items,omitempty"`
}

// StockKey identifies what a ledger line moved: a material, or a product size with optional color.
type StockKey struct {
	MaterialID    int64 `json:"material_id,omitempty"`
	ProductSizeID int64 `json:"product_size_id,omitempty"`
	ColorID       int64 `json:"color_id,omitempty"`
}

// MaterialKey builds the key of a raw material.
func MaterialKey(materialID int64) StockKey {
	return StockKey{MaterialID: materialID}
}

// ProductKey builds the key of a product size in a color (0 for none).
func ProductKey(productSizeID, colorID int64) StockKey {
	return StockKey{ProductSizeID: productSizeID, ColorID: colorID}
}

// IsMaterial reports whether the key refers to a material.
func (k StockKey) IsMaterial() bool {
	return k.MaterialID != 0
}

// Valid reports whether exactly one of material or product size is set.
func (k StockKey) Valid() bool {
	if k.MaterialID != 0 {
		return k.ProductSizeID == 0 && k.ColorID == 0
	}
	return k.ProductSizeID != 0
}

func (k StockKey) String() string {
	if k.IsMaterial() {
		return fmt.Sprintf("material:%d", k.MaterialID)
	}
	return fmt.Sprintf("product_size:%d:color:%d", k.ProductSizeID, k.ColorID)
}

// TransactionItem is one ledger line.
type TransactionItem struct {
	ID                int64           `json:"id"`
	TransactionID     int64           `json:"transaction_id"`
	Type              TransactionType `json:"transaction_type"`
	Key               StockKey        `json:"key"`
	Quantity          decimal.Decimal `json:"quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
	PendingQuantity   decimal.Decimal `json:"pending_quantity"`
	Cost              decimal.Decimal `json:"cost"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Available reports whether the item can still be consumed.
func (i TransactionItem) Available() bool {
	return i.RemainingQuantity.IsPositive()
}

// Allocation records how much a consuming line drew from a source batch.
type Allocation struct {
	ConsumerItemID int64
	SourceItemID   int64
	Quantity       decimal.Decimal
	Cost           decimal.Decimal
}

// StockLevel is the aggregated view of a key.
type StockLevel struct {
	Key        StockKey        `json:"key"`
	Quantity   decimal.Decimal `json:"quantity"`
	LatestCost decimal.Decimal `json:"latest_cost"`
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	Type    TransactionType
	Page    int
	PerPage int
}
