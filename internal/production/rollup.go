package production

import (
	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/ledger"
)

// TotalCost is Σ cost × quantity over the run's lines plus every allocated overhead.
func TotalCost(items []ledger.TransactionItem, costs []CostItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Cost.Mul(item.Quantity))
	}
	for _, c := range costs {
		total = total.Add(c.Cost)
	}
	return total
}

// Unallocated lists categories with no cost item on the run.
func Unallocated(categories []CostCategory, costs []CostItem) []CostCategory {
	used := make(map[int64]bool, len(costs))
	for _, c := range costs {
		used[c.ManufacturingCostID] = true
	}
	out := []CostCategory{}
	for _, cat := range categories {
		if !used[cat.ID] {
			out = append(out, cat)
		}
	}
	return out
}
