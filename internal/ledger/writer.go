package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/shared"
)

// StockItem builds a stock-increasing line: everything recorded is available to FIFO.
func StockItem(key StockKey, qty, cost decimal.Decimal) TransactionItem {
	return TransactionItem{Key: key, Quantity: qty, RemainingQuantity: qty, PendingQuantity: decimal.Zero, Cost: cost}
}

// PendingItem builds a line reserved by an order and not yet available.
func PendingItem(key StockKey, qty, cost decimal.Decimal) TransactionItem {
	return TransactionItem{Key: key, Quantity: qty, RemainingQuantity: decimal.Zero, PendingQuantity: qty, Cost: cost}
}

// ConsumptionItem builds a line recording stock drawn by FIFO. A single-batch consumption keeps
// the batch cost; otherwise the line carries the rounded weighted cost, so callers that roll up
// cost × quantity should Split first.
func ConsumptionItem(c Consumption) TransactionItem {
	cost := c.UnitCost()
	if len(c.Batches) == 1 {
		cost = c.Batches[0].Cost
	}
	return TransactionItem{Key: c.Key, Quantity: c.Quantity, RemainingQuantity: decimal.Zero, PendingQuantity: decimal.Zero, Cost: cost}
}

// Posting is a header plus its lines ready to be written in one store transaction.
// Consumed maps a line index to the FIFO consumption the line records.
type Posting struct {
	Header   Transaction
	Items    []TransactionItem
	Consumed map[int]Consumption
}

// Write inserts the header, its lines and the allocations of consuming lines.
func Write(ctx context.Context, repo TxRepository, p Posting) (Transaction, error) {
	if len(p.Items) == 0 {
		return Transaction{}, shared.Validation("lines", "at least one line is required")
	}
	header := p.Header
	if header.Code == "" {
		header.Code = NewCode(header.Type)
	}
	if header.Date.IsZero() {
		header.Date = time.Now().UTC()
	}
	for _, item := range p.Items {
		if item.RemainingQuantity.GreaterThan(item.Quantity) {
			return Transaction{}, shared.Validation("remaining_quantity", "cannot exceed quantity")
		}
	}
	saved, err := repo.InsertTransaction(ctx, header)
	if err != nil {
		return Transaction{}, shared.StoreFailure(err)
	}
	items, err := repo.InsertItems(ctx, saved.ID, p.Items)
	if err != nil {
		return Transaction{}, shared.StoreFailure(err)
	}
	var allocations []Allocation
	for idx, consumption := range p.Consumed {
		if idx < 0 || idx >= len(items) {
			return Transaction{}, fmt.Errorf("ledger: consumption for unknown line %d", idx)
		}
		allocations = append(allocations, consumption.Allocations(items[idx].ID)...)
	}
	if len(allocations) > 0 {
		if err := repo.InsertAllocations(ctx, allocations); err != nil {
			return Transaction{}, shared.StoreFailure(err)
		}
	}
	for i := range items {
		items[i].Type = saved.Type
	}
	saved.Items = items
	return saved, nil
}

// Reverse undoes the stock effects of header and deletes it. Batches drawn by its lines get
// their remaining quantity back. Stock it added that was already consumed elsewhere blocks the
// reversal.
func Reverse(ctx context.Context, repo TxRepository, header Transaction) error {
	dependents, err := repo.CountDependentAllocations(ctx, header.ID)
	if err != nil {
		return shared.StoreFailure(err)
	}
	if dependents > 0 {
		return shared.Validation("transaction", fmt.Sprintf("stock booked by %s was already consumed by %d other line(s)", header.Code, dependents))
	}
	allocations, err := repo.ListAllocationsByTransaction(ctx, header.ID)
	if err != nil {
		return shared.StoreFailure(err)
	}
	for _, a := range allocations {
		if err := repo.RestoreRemaining(ctx, a.SourceItemID, a.Quantity); err != nil {
			return shared.StoreFailure(err)
		}
	}
	if err := repo.DeleteTransaction(ctx, header.ID); err != nil {
		return shared.StoreFailure(err)
	}
	return nil
}

// SetOrderStatus moves the linked order to status without the forward-only check used by
// clients; production completion and reversal drive it.
func SetOrderStatus(ctx context.Context, repo TxRepository, orderID int64, status SaleStatus) error {
	order, err := repo.GetTransactionForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if order.SaleStatus == nil {
		return shared.Referential("order", fmt.Sprintf("transaction %d is not an order", orderID))
	}
	if *order.SaleStatus == status {
		return nil
	}
	if err := repo.UpdateSaleStatus(ctx, orderID, status); err != nil {
		return shared.StoreFailure(err)
	}
	return nil
}

var codePrefix = map[TransactionType]string{
	TypeOpeningStock:  "OPN",
	TypePurchase:      "PUR",
	TypeSale:          "SAL",
	TypeProduction:    "PRD",
	TypeManufacturing: "MFO",
	TypeAdjustment:    "ADJ",
}

// NewCode generates a human reference for a transaction.
func NewCode(t TransactionType) string {
	prefix, ok := codePrefix[t]
	if !ok {
		prefix = "TRX"
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.NewString()[:8]))
}
