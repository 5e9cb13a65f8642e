package ledger

import (
	"github.com/shopspring/decimal"
)

// Summarize derives the stock level of key from its ledger items.
//
// remaining_quantity is the single source of truth for quantity: FIFO consumption already
// decremented it in place, so sale quantities are never subtracted again. The latest cost is
// taken from the newest cost-bearing item; sale and production lines carry selling or
// allocated costs and never count.
func Summarize(key StockKey, items []TransactionItem) StockLevel {
	level := StockLevel{Key: key, Quantity: decimal.Zero, LatestCost: decimal.Zero}
	var latest *TransactionItem
	for i := range items {
		item := &items[i]
		if item.Type.StockBearing() {
			level.Quantity = level.Quantity.Add(item.RemainingQuantity)
		}
		if !item.Type.CostBearing() {
			continue
		}
		if latest == nil || newer(item, latest) {
			latest = item
		}
	}
	if latest != nil {
		level.LatestCost = latest.Cost
	}
	return level
}

func newer(a, b *TransactionItem) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}
