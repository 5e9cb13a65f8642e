package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atelier-erp/atelier/internal/shared"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func batch(id int64, typ TransactionType, remaining, cost string, at time.Duration) TransactionItem {
	return TransactionItem{
		ID:                id,
		Type:              typ,
		Key:               MaterialKey(1),
		Quantity:          dec(remaining),
		RemainingQuantity: dec(remaining),
		Cost:              dec(cost),
		CreatedAt:         t0.Add(at),
	}
}

func TestConsumeDepletesOldestFirst(t *testing.T) {
	items := []TransactionItem{
		batch(2, TypePurchase, "5", "7", time.Hour),
		batch(1, TypeOpeningStock, "5", "5", 0),
	}
	c, err := Consume(ConsumeRequest{Key: MaterialKey(1), Quantity: dec("7")}, items)
	require.NoError(t, err)

	require.Equal(t, int64(1), items[0].ID)
	require.True(t, items[0].RemainingQuantity.IsZero())
	require.True(t, items[1].RemainingQuantity.Equal(dec("3")))
	require.Len(t, c.Batches, 2)
	require.True(t, c.Batches[0].Quantity.Equal(dec("5")))
	require.True(t, c.Batches[1].Quantity.Equal(dec("2")))
	require.True(t, c.TotalCost().Equal(dec("39")))
	require.True(t, c.UnitCost().Equal(dec("5.5714")))
}

func TestSplitKeepsBatchCosts(t *testing.T) {
	items := []TransactionItem{
		batch(1, TypePurchase, "1", "1", 0),
		batch(2, TypePurchase, "1", "1", time.Minute),
		batch(3, TypePurchase, "1", "2", 2*time.Minute),
	}
	c, err := Consume(ConsumeRequest{Key: MaterialKey(1), Quantity: dec("3")}, items)
	require.NoError(t, err)
	require.True(t, ConsumptionItem(c).Cost.Equal(dec("1.3333")))

	total := decimal.Zero
	parts := c.Split()
	require.Len(t, parts, 3)
	for i, part := range parts {
		line := ConsumptionItem(part)
		require.Equal(t, c.Batches[i].SourceItemID, part.Batches[0].SourceItemID)
		require.True(t, line.Cost.Equal(c.Batches[i].Cost))
		require.True(t, line.RemainingQuantity.IsZero())
		total = total.Add(line.Cost.Mul(line.Quantity))
	}
	require.True(t, total.Equal(c.TotalCost()))
	require.True(t, total.Equal(dec("4")))
}

func TestConsumeExactRemainingStopsAtItem(t *testing.T) {
	items := []TransactionItem{
		batch(1, TypePurchase, "5", "2", 0),
		batch(2, TypePurchase, "5", "3", time.Minute),
	}
	c, err := Consume(ConsumeRequest{Key: MaterialKey(1), Quantity: dec("5")}, items)
	require.NoError(t, err)
	require.True(t, items[0].RemainingQuantity.IsZero())
	require.True(t, items[1].RemainingQuantity.Equal(dec("5")))
	require.Len(t, c.Batches, 1)
}

func TestConsumeTieBreaksOnID(t *testing.T) {
	items := []TransactionItem{
		batch(9, TypePurchase, "4", "1", 0),
		batch(3, TypePurchase, "4", "1", 0),
	}
	c, err := Consume(ConsumeRequest{Key: MaterialKey(1), Quantity: dec("1")}, items)
	require.NoError(t, err)
	require.Equal(t, int64(3), c.Batches[0].SourceItemID)
}

func TestConsumeInsufficientLeavesItemsUntouched(t *testing.T) {
	items := []TransactionItem{
		batch(1, TypeOpeningStock, "6", "5", 0),
		batch(2, TypePurchase, "4", "5", time.Hour),
	}
	_, err := Consume(ConsumeRequest{Key: MaterialKey(1), Label: "leather", Quantity: dec("12")}, items)
	require.Error(t, err)

	var domainErr *shared.Error
	require.True(t, errors.As(err, &domainErr))
	require.Equal(t, shared.KindInsufficientStock, domainErr.Kind)
	require.Equal(t, "leather", domainErr.Entity)
	require.True(t, domainErr.Required.Equal(dec("12")))
	require.True(t, domainErr.Remaining.Equal(dec("10")))
	require.Contains(t, err.Error(), "leather")

	require.True(t, items[0].RemainingQuantity.Equal(dec("6")))
	require.True(t, items[1].RemainingQuantity.Equal(dec("4")))
}

func TestConsumeSkipsIneligibleItems(t *testing.T) {
	sale := batch(1, TypeSale, "50", "100", 0)
	empty := batch(2, TypePurchase, "0", "3", time.Minute)
	good := batch(3, TypeAdjustment, "2", "4", time.Hour)
	items := []TransactionItem{sale, empty, good}

	c, err := Consume(ConsumeRequest{Key: MaterialKey(1), Quantity: dec("2")}, items)
	require.NoError(t, err)
	require.Len(t, c.Batches, 1)
	require.Equal(t, int64(3), c.Batches[0].SourceItemID)
	require.True(t, items[0].RemainingQuantity.Equal(dec("50")))
}

func TestConsumeRejectsNonPositiveQuantity(t *testing.T) {
	_, err := Consume(ConsumeRequest{Key: MaterialKey(1), Quantity: decimal.Zero}, nil)
	require.True(t, shared.IsKind(err, shared.KindValidation))
}

type fakeStockStore struct {
	items   map[StockKey][]TransactionItem
	updates map[int64]decimal.Decimal
	locked  []StockKey
}

func (f *fakeStockStore) LockAvailableItems(_ context.Context, key StockKey) ([]TransactionItem, error) {
	f.locked = append(f.locked, key)
	return append([]TransactionItem(nil), f.items[key]...), nil
}

func (f *fakeStockStore) UpdateRemaining(_ context.Context, itemID int64, remaining decimal.Decimal) error {
	f.updates[itemID] = remaining
	return nil
}

func TestConsumeAllVerifiesEveryKeyBeforeWriting(t *testing.T) {
	leather := MaterialKey(1)
	glue := MaterialKey(2)
	store := &fakeStockStore{
		items: map[StockKey][]TransactionItem{
			leather: {batch(1, TypePurchase, "10", "5", 0)},
			glue:    {{ID: 2, Type: TypePurchase, Key: glue, Quantity: dec("1"), RemainingQuantity: dec("1"), Cost: dec("2"), CreatedAt: t0}},
		},
		updates: map[int64]decimal.Decimal{},
	}
	_, err := ConsumeAll(context.Background(), store, []ConsumeRequest{
		{Key: leather, Label: "leather", Quantity: dec("4")},
		{Key: glue, Label: "glue", Quantity: dec("3")},
	})
	require.True(t, shared.IsKind(err, shared.KindInsufficientStock))
	require.Empty(t, store.updates)
}

func TestConsumeAllMergesRequestsPerKey(t *testing.T) {
	leather := MaterialKey(1)
	store := &fakeStockStore{
		items: map[StockKey][]TransactionItem{
			leather: {batch(1, TypePurchase, "5", "5", 0), batch(2, TypePurchase, "5", "7", time.Hour)},
		},
		updates: map[int64]decimal.Decimal{},
	}
	out, err := ConsumeAll(context.Background(), store, []ConsumeRequest{
		{Key: leather, Quantity: dec("4")},
		{Key: leather, Quantity: dec("3")},
	})
	require.NoError(t, err)
	require.Len(t, store.locked, 1)
	require.True(t, out[leather].Quantity.Equal(dec("7")))
	require.True(t, store.updates[1].IsZero())
	require.True(t, store.updates[2].Equal(dec("3")))
}
