package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/shared"
)

// ConsumeRequest asks the FIFO consumer for a quantity of one key.
type ConsumeRequest struct {
	Key      StockKey
	Label    string
	Quantity decimal.Decimal
}

// Batch is the part of one source item drawn by a consumption.
type Batch struct {
	SourceItemID   int64
	Quantity       decimal.Decimal
	Cost           decimal.Decimal
	RemainingAfter decimal.Decimal
}

// Consumption is the outcome of consuming one key.
type Consumption struct {
	Key      StockKey
	Quantity decimal.Decimal
	Batches  []Batch
}

// TotalCost is the acquisition cost of everything consumed.
func (c Consumption) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, b := range c.Batches {
		total = total.Add(b.Quantity.Mul(b.Cost))
	}
	return total
}

// UnitCost is the weighted cost per consumed unit.
func (c Consumption) UnitCost() decimal.Decimal {
	if !c.Quantity.IsPositive() {
		return decimal.Zero
	}
	return c.TotalCost().DivRound(c.Quantity, 4)
}

// Split breaks c into one consumption per drawn batch, oldest first.
func (c Consumption) Split() []Consumption {
	out := make([]Consumption, 0, len(c.Batches))
	for _, b := range c.Batches {
		out = append(out, Consumption{Key: c.Key, Quantity: b.Quantity, Batches: []Batch{b}})
	}
	return out
}

// Allocations converts the batches into allocation rows for the consuming line.
func (c Consumption) Allocations(consumerItemID int64) []Allocation {
	out := make([]Allocation, 0, len(c.Batches))
	for _, b := range c.Batches {
		out = append(out, Allocation{ConsumerItemID: consumerItemID, SourceItemID: b.SourceItemID, Quantity: b.Quantity, Cost: b.Cost})
	}
	return out
}

// Eligible reports whether item may be drawn by FIFO consumption.
func Eligible(item TransactionItem) bool {
	return item.Type.StockBearing() && item.Available()
}

// Available sums remaining_quantity over the eligible items.
func Available(items []TransactionItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if Eligible(item) {
			total = total.Add(item.RemainingQuantity)
		}
	}
	return total
}

// SortFIFO orders items oldest first.
func SortFIFO(items []TransactionItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

// Consume draws req.Quantity from items oldest first and lowers their RemainingQuantity in place.
// When the items cannot cover the request nothing is modified and an insufficient stock error
// naming the entity is returned.
func Consume(req ConsumeRequest, items []TransactionItem) (Consumption, error) {
	if !req.Quantity.IsPositive() {
		return Consumption{}, shared.Validation("quantity", "must be greater than zero")
	}
	SortFIFO(items)

	type take struct {
		index int
		qty   decimal.Decimal
	}
	var plan []take
	needed := req.Quantity
	for i, item := range items {
		if !needed.IsPositive() {
			break
		}
		if !Eligible(item) {
			continue
		}
		remaining := item.RemainingQuantity
		switch needed.Cmp(remaining) {
		case 0:
			plan = append(plan, take{index: i, qty: remaining})
			needed = decimal.Zero
		case 1:
			plan = append(plan, take{index: i, qty: remaining})
			needed = needed.Sub(remaining)
		default:
			plan = append(plan, take{index: i, qty: needed})
			needed = decimal.Zero
		}
	}
	if needed.IsPositive() {
		return Consumption{}, shared.InsufficientStock(labelFor(req), req.Quantity, req.Quantity.Sub(needed))
	}

	out := Consumption{Key: req.Key, Quantity: req.Quantity}
	for _, t := range plan {
		item := &items[t.index]
		item.RemainingQuantity = item.RemainingQuantity.Sub(t.qty)
		out.Batches = append(out.Batches, Batch{
			SourceItemID:   item.ID,
			Quantity:       t.qty,
			Cost:           item.Cost,
			RemainingAfter: item.RemainingQuantity,
		})
	}
	return out, nil
}

// StockStore is the part of the ledger store FIFO consumption runs against. It must be bound
// to the atomic transaction of the event that triggers the consumption.
type StockStore interface {
	LockAvailableItems(ctx context.Context, key StockKey) ([]TransactionItem, error)
	UpdateRemaining(ctx context.Context, itemID int64, remaining decimal.Decimal) error
}

// ConsumeAll consumes every request inside the caller's store transaction.
//
// Requests for the same key are merged. All totals are verified before the first remaining
// quantity is touched, so a shortfall on one key never leaves writes staged for another.
// Keys are locked in a stable order.
func ConsumeAll(ctx context.Context, store StockStore, reqs []ConsumeRequest) (map[StockKey]Consumption, error) {
	merged := MergeRequests(reqs)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Key.String() < merged[j].Key.String() })

	loaded := make([][]TransactionItem, len(merged))
	for i, req := range merged {
		if !req.Quantity.IsPositive() {
			return nil, shared.Validation("quantity", "must be greater than zero")
		}
		items, err := store.LockAvailableItems(ctx, req.Key)
		if err != nil {
			return nil, shared.StoreFailure(err)
		}
		if available := Available(items); available.LessThan(req.Quantity) {
			return nil, shared.InsufficientStock(labelFor(req), req.Quantity, available)
		}
		loaded[i] = items
	}

	out := make(map[StockKey]Consumption, len(merged))
	for i, req := range merged {
		consumption, err := Consume(req, loaded[i])
		if err != nil {
			return nil, err
		}
		for _, b := range consumption.Batches {
			if err := store.UpdateRemaining(ctx, b.SourceItemID, b.RemainingAfter); err != nil {
				return nil, shared.StoreFailure(err)
			}
		}
		out[req.Key] = consumption
	}
	return out, nil
}

// MergeRequests sums requests per key keeping first-seen order and label.
func MergeRequests(reqs []ConsumeRequest) []ConsumeRequest {
	index := make(map[StockKey]int, len(reqs))
	var out []ConsumeRequest
	for _, req := range reqs {
		if i, ok := index[req.Key]; ok {
			out[i].Quantity = out[i].Quantity.Add(req.Quantity)
			continue
		}
		index[req.Key] = len(out)
		out = append(out, req)
	}
	return out
}

func labelFor(req ConsumeRequest) string {
	if req.Label != "" {
		return req.Label
	}
	return req.Key.String()
}
