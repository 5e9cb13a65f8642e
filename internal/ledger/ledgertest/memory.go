// Package ledgertest provides an in-memory ledger store for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/ledger"
	"github.com/atelier-erp/atelier/internal/shared"
)

// Store keeps the ledger in maps. WithTx snapshots the state and restores it when the callback
// fails, mirroring a rolled back store transaction.
type Store struct {
	mu           sync.Mutex
	clock        time.Time
	nextTx       int64
	nextItem     int64
	transactions map[int64]ledger.Transaction
	items        map[int64]ledger.TransactionItem
	allocations  []ledger.Allocation

	// FailOn makes the named tx operation return an error once.
	FailOn string
}

type state struct {
	clock        time.Time
	nextTx       int64
	nextItem     int64
	transactions map[int64]ledger.Transaction
	items        map[int64]ledger.TransactionItem
	allocations  []ledger.Allocation
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{
		clock:        time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		transactions: make(map[int64]ledger.Transaction),
		items:        make(map[int64]ledger.TransactionItem),
	}
}

func (s *Store) snapshot() state {
	st := state{
		clock:        s.clock,
		nextTx:       s.nextTx,
		nextItem:     s.nextItem,
		transactions: make(map[int64]ledger.Transaction, len(s.transactions)),
		items:        make(map[int64]ledger.TransactionItem, len(s.items)),
		allocations:  append([]ledger.Allocation(nil), s.allocations...),
	}
	for k, v := range s.transactions {
		st.transactions[k] = v
	}
	for k, v := range s.items {
		st.items[k] = v
	}
	return st
}

func (s *Store) restore(st state) {
	s.clock = st.clock
	s.nextTx = st.nextTx
	s.nextItem = st.nextItem
	s.transactions = st.transactions
	s.items = st.items
	s.allocations = st.allocations
}

// WithTx runs fn atomically.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(ctx, &Tx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ListItemsByKey returns every line booked for key.
func (s *Store) ListItemsByKey(_ context.Context, key ledger.StockKey) ([]ledger.TransactionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.TransactionItem
	for _, item := range s.items {
		if item.Key == key {
			out = append(out, item)
		}
	}
	ledger.SortFIFO(out)
	return out, nil
}

// GetTransaction loads a header with its lines.
func (s *Store) GetTransaction(_ context.Context, id int64) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return ledger.Transaction{}, shared.NotFound("transaction", id)
	}
	tx.Items = s.itemsOf(id)
	return tx, nil
}

// ListTransactions pages through headers, newest first.
func (s *Store) ListTransactions(_ context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []ledger.Transaction
	for _, tx := range s.transactions {
		if filter.Type == "" || tx.Type == filter.Type {
			all = append(all, tx)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.After(all[j].Date)
		}
		return all[i].ID > all[j].ID
	})
	page := shared.NewPagination(filter.Page, filter.PerPage, len(all))
	start := min(page.Offset(), len(all))
	end := min(start+page.PerPage, len(all))
	return append([]ledger.Transaction{}, all[start:end]...), len(all), nil
}

// Item returns a line by id.
func (s *Store) Item(id int64) (ledger.TransactionItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

// Allocations returns a copy of every allocation row.
func (s *Store) Allocations() []ledger.Allocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Allocation(nil), s.allocations...)
}

// TransactionCount reports how many headers are stored.
func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *Store) itemsOf(txID int64) []ledger.TransactionItem {
	var out []ledger.TransactionItem
	for _, item := range s.items {
		if item.TransactionID == txID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// Tx is the transactional view handed to WithTx callbacks.
type Tx struct {
	store *Store
}

func (t *Tx) fail(op string) error {
	if t.store.FailOn == op {
		t.store.FailOn = ""
		return fmt.Errorf("ledgertest: %s failed", op)
	}
	return nil
}

func (t *Tx) LockAvailableItems(_ context.Context, key ledger.StockKey) ([]ledger.TransactionItem, error) {
	if err := t.fail("LockAvailableItems"); err != nil {
		return nil, err
	}
	var out []ledger.TransactionItem
	for _, item := range t.store.items {
		if item.Key == key && ledger.Eligible(item) {
			out = append(out, item)
		}
	}
	ledger.SortFIFO(out)
	return out, nil
}

func (t *Tx) UpdateRemaining(_ context.Context, itemID int64, remaining decimal.Decimal) error {
	if err := t.fail("UpdateRemaining"); err != nil {
		return err
	}
	item, ok := t.store.items[itemID]
	if !ok {
		return shared.NotFound("transaction item", itemID)
	}
	item.RemainingQuantity = remaining
	t.store.items[itemID] = item
	return nil
}

func (t *Tx) InsertTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if err := t.fail("InsertTransaction"); err != nil {
		return ledger.Transaction{}, err
	}
	t.store.nextTx++
	tx.ID = t.store.nextTx
	tx.CreatedAt = t.store.tick()
	tx.Items = nil
	t.store.transactions[tx.ID] = tx
	return tx, nil
}

func (t *Tx) InsertItems(_ context.Context, txID int64, items []ledger.TransactionItem) ([]ledger.TransactionItem, error) {
	if err := t.fail("InsertItems"); err != nil {
		return nil, err
	}
	header, ok := t.store.transactions[txID]
	if !ok {
		return nil, shared.NotFound("transaction", txID)
	}
	out := make([]ledger.TransactionItem, 0, len(items))
	for _, item := range items {
		t.store.nextItem++
		item.ID = t.store.nextItem
		item.TransactionID = txID
		item.Type = header.Type
		item.CreatedAt = t.store.tick()
		t.store.items[item.ID] = item
		out = append(out, item)
	}
	return out, nil
}

func (t *Tx) InsertAllocations(_ context.Context, allocations []ledger.Allocation) error {
	if err := t.fail("InsertAllocations"); err != nil {
		return err
	}
	t.store.allocations = append(t.store.allocations, allocations...)
	return nil
}

func (t *Tx) GetTransactionForUpdate(_ context.Context, id int64) (ledger.Transaction, error) {
	tx, ok := t.store.transactions[id]
	if !ok {
		return ledger.Transaction{}, shared.NotFound("transaction", id)
	}
	return tx, nil
}

func (t *Tx) ListItems(_ context.Context, txID int64) ([]ledger.TransactionItem, error) {
	return t.store.itemsOf(txID), nil
}

func (t *Tx) ListAllocationsByTransaction(_ context.Context, txID int64) ([]ledger.Allocation, error) {
	var out []ledger.Allocation
	for _, a := range t.store.allocations {
		if t.store.items[a.ConsumerItemID].TransactionID == txID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *Tx) CountDependentAllocations(_ context.Context, txID int64) (int, error) {
	n := 0
	for _, a := range t.store.allocations {
		if t.store.items[a.SourceItemID].TransactionID == txID && t.store.items[a.ConsumerItemID].TransactionID != txID {
			n++
		}
	}
	return n, nil
}

func (t *Tx) RestoreRemaining(_ context.Context, itemID int64, qty decimal.Decimal) error {
	item, ok := t.store.items[itemID]
	if !ok {
		return shared.NotFound("transaction item", itemID)
	}
	item.RemainingQuantity = item.RemainingQuantity.Add(qty)
	t.store.items[itemID] = item
	return nil
}

func (t *Tx) UpdateSaleStatus(_ context.Context, id int64, status ledger.SaleStatus) error {
	tx, ok := t.store.transactions[id]
	if !ok {
		return shared.NotFound("transaction", id)
	}
	tx.SaleStatus = &status
	t.store.transactions[id] = tx
	return nil
}

func (t *Tx) UpdateManufacturingStatus(_ context.Context, id int64, status ledger.ManufacturingStatus) error {
	tx, ok := t.store.transactions[id]
	if !ok {
		return shared.NotFound("transaction", id)
	}
	tx.ManufacturingStatus = &status
	t.store.transactions[id] = tx
	return nil
}

func (t *Tx) PromotePending(_ context.Context, txID int64) error {
	for id, item := range t.store.items {
		if item.TransactionID == txID && item.PendingQuantity.IsPositive() {
			item.RemainingQuantity = item.RemainingQuantity.Add(item.PendingQuantity)
			item.PendingQuantity = decimal.Zero
			t.store.items[id] = item
		}
	}
	return nil
}

func (t *Tx) DeleteTransaction(_ context.Context, id int64) error {
	if _, ok := t.store.transactions[id]; !ok {
		return shared.NotFound("transaction", id)
	}
	delete(t.store.transactions, id)
	removed := make(map[int64]bool)
	for itemID, item := range t.store.items {
		if item.TransactionID == id {
			removed[itemID] = true
			delete(t.store.items, itemID)
		}
	}
	kept := t.store.allocations[:0]
	for _, a := range t.store.allocations {
		if removed[a.ConsumerItemID] || removed[a.SourceItemID] {
			continue
		}
		kept = append(kept, a)
	}
	t.store.allocations = kept
	return nil
}

// Catalog is a map-backed catalog lookup.
type Catalog struct {
	ProductSizes map[[2]int64]int64
	Colors       map[int64]bool
	Materials    map[int64]string
}

// NewCatalog builds an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		ProductSizes: make(map[[2]int64]int64),
		Colors:       make(map[int64]bool),
		Materials:    make(map[int64]string),
	}
}

func (c *Catalog) ResolveProductSize(_ context.Context, productID, sizeID int64) (int64, error) {
	id, ok := c.ProductSizes[[2]int64{productID, sizeID}]
	if !ok {
		return 0, shared.Referential("product_size", fmt.Sprintf("product %d has no size %d", productID, sizeID))
	}
	return id, nil
}

func (c *Catalog) ColorExists(_ context.Context, colorID int64) (bool, error) {
	return c.Colors[colorID], nil
}

func (c *Catalog) MaterialName(_ context.Context, materialID int64) (string, error) {
	name, ok := c.Materials[materialID]
	if !ok {
		return "", shared.Referential("material", fmt.Sprintf("material %d does not exist", materialID))
	}
	return name, nil
}
