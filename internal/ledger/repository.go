package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/platform/db"
	"github.com/atelier-erp/atelier/internal/shared"
)

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	StockStore
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	InsertItems(ctx context.Context, txID int64, items []TransactionItem) ([]TransactionItem, error)
	InsertAllocations(ctx context.Context, allocations []Allocation) error
	GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error)
	ListItems(ctx context.Context, txID int64) ([]TransactionItem, error)
	ListAllocationsByTransaction(ctx context.Context, txID int64) ([]Allocation, error)
	CountDependentAllocations(ctx context.Context, txID int64) (int, error)
	RestoreRemaining(ctx context.Context, itemID int64, qty decimal.Decimal) error
	UpdateSaleStatus(ctx context.Context, id int64, status SaleStatus) error
	UpdateManufacturingStatus(ctx context.Context, id int64, status ManufacturingStatus) error
	PromotePending(ctx context.Context, txID int64) error
	DeleteTransaction(ctx context.Context, id int64) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds ledger operations to an open store transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// ListItemsByKey returns every line booked for key with its header type.
func (r *Repository) ListItemsByKey(ctx context.Context, key StockKey) ([]TransactionItem, error) {
	cond, args := keyCondition(key, 1)
	return queryItems(ctx, r.pool, itemSelect+` WHERE `+cond+` ORDER BY ti.created_at ASC, ti.id ASC`, args...)
}

// GetTransaction loads a header with its lines.
func (r *Repository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	header, err := getTransaction(ctx, r.pool, id, false)
	if err != nil {
		return Transaction{}, err
	}
	items, err := queryItems(ctx, r.pool, itemSelect+` WHERE ti.transaction_id=$1 ORDER BY ti.id ASC`, id)
	if err != nil {
		return Transaction{}, err
	}
	header.Items = items
	return header, nil
}

// ListTransactions returns one page of headers, newest first, and the total match count.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, int, error) {
	where := ``
	args := []any{}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = ` WHERE transaction_type=$1`
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions`+where+
		` ORDER BY transaction_date DESC, id DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, tx)
	}
	return out, total, rows.Err()
}

// IntegrityViolation describes a line that breaks the ledger invariants.
type IntegrityViolation struct {
	ItemID            int64
	TransactionID     int64
	Quantity          decimal.Decimal
	RemainingQuantity decimal.Decimal
	PendingQuantity   decimal.Decimal
}

// FindIntegrityViolations lists lines with remaining above quantity or negative balances.
func (r *Repository) FindIntegrityViolations(ctx context.Context, limit int) ([]IntegrityViolation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, transaction_id, quantity, remaining_quantity, pending_quantity
FROM transaction_items
WHERE remaining_quantity > quantity OR remaining_quantity < 0 OR pending_quantity < 0
ORDER BY id ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IntegrityViolation
	for rows.Next() {
		var v IntegrityViolation
		if err := rows.Scan(&v.ItemID, &v.TransactionID, &v.Quantity, &v.RemainingQuantity, &v.PendingQuantity); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const transactionColumns = `id, code, transaction_type, transaction_date, customer_id, supplier_id, sale_status, manufacturing_status, order_id, COALESCE(payment_method, ''), created_at`

const transactionSelect = `SELECT ` + transactionColumns + ` FROM transactions WHERE id=$1`

const itemSelect = `SELECT ti.id, ti.transaction_id, t.transaction_type, ti.material_id, ti.product_size_id, ti.color_id,
ti.quantity, ti.remaining_quantity, ti.pending_quantity, ti.cost, ti.created_at
FROM transaction_items ti
JOIN transactions t ON t.id = ti.transaction_id`

func getTransaction(ctx context.Context, q querier, id int64, forUpdate bool) (Transaction, error) {
	query := transactionSelect
	if forUpdate {
		query += ` FOR UPDATE`
	}
	tx, err := scanTransaction(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, shared.NotFound("transaction", id)
		}
		return Transaction{}, err
	}
	return tx, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx         Transaction
		saleStatus *string
		mfgStatus  *string
	)
	if err := row.Scan(&tx.ID, &tx.Code, &tx.Type, &tx.Date, &tx.CustomerID, &tx.SupplierID, &saleStatus, &mfgStatus, &tx.OrderID, &tx.PaymentMethod, &tx.CreatedAt); err != nil {
		return Transaction{}, err
	}
	if saleStatus != nil {
		s := SaleStatus(*saleStatus)
		tx.SaleStatus = &s
	}
	if mfgStatus != nil {
		s := ManufacturingStatus(*mfgStatus)
		tx.ManufacturingStatus = &s
	}
	return tx, nil
}

func queryItems(ctx context.Context, q querier, sql string, args ...any) ([]TransactionItem, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TransactionItem{}
	for rows.Next() {
		var (
			item                               TransactionItem
			materialID, productSizeID, colorID *int64
		)
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.Type, &materialID, &productSizeID, &colorID,
			&item.Quantity, &item.RemainingQuantity, &item.PendingQuantity, &item.Cost, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.Key = StockKey{MaterialID: deref(materialID), ProductSizeID: deref(productSizeID), ColorID: deref(colorID)}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func keyCondition(key StockKey, first int) (string, []any) {
	if key.IsMaterial() {
		return `ti.material_id=$` + strconv.Itoa(first), []any{key.MaterialID}
	}
	return `ti.product_size_id=$` + strconv.Itoa(first) + ` AND COALESCE(ti.color_id, 0)=$` + strconv.Itoa(first+1), []any{key.ProductSizeID, key.ColorID}
}

func stockBearingTypes() []string {
	return []string{string(TypeOpeningStock), string(TypePurchase), string(TypeProduction), string(TypeAdjustment)}
}

func (r *txRepository) LockAvailableItems(ctx context.Context, key StockKey) ([]TransactionItem, error) {
	cond, args := keyCondition(key, 1)
	args = append(args, stockBearingTypes())
	sql := itemSelect + ` WHERE ` + cond + ` AND ti.remaining_quantity > 0 AND t.transaction_type = ANY($` + strconv.Itoa(len(args)) + `)
ORDER BY ti.created_at ASC, ti.id ASC
FOR UPDATE OF ti`
	return queryItems(ctx, r.tx, sql, args...)
}

func (r *txRepository) UpdateRemaining(ctx context.Context, itemID int64, remaining decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transaction_items SET remaining_quantity=$1 WHERE id=$2`, remaining, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("transaction item", itemID)
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	var saleStatus, mfgStatus any
	if tx.SaleStatus != nil {
		saleStatus = string(*tx.SaleStatus)
	}
	if tx.ManufacturingStatus != nil {
		mfgStatus = string(*tx.ManufacturingStatus)
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO transactions (code, transaction_type, transaction_date, customer_id, supplier_id, sale_status, manufacturing_status, order_id, payment_method, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id, created_at`,
		tx.Code, string(tx.Type), tx.Date, tx.CustomerID, tx.SupplierID, saleStatus, mfgStatus, tx.OrderID, nullString(tx.PaymentMethod)).Scan(&tx.ID, &tx.CreatedAt)
	return tx, err
}

func (r *txRepository) InsertItems(ctx context.Context, txID int64, items []TransactionItem) ([]TransactionItem, error) {
	out := make([]TransactionItem, 0, len(items))
	for _, item := range items {
		item.TransactionID = txID
		err := r.tx.QueryRow(ctx, `INSERT INTO transaction_items (transaction_id, material_id, product_size_id, color_id, quantity, remaining_quantity, pending_quantity, cost, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,clock_timestamp()) RETURNING id, created_at`,
			txID, nullInt(item.Key.MaterialID), nullInt(item.Key.ProductSizeID), nullInt(item.Key.ColorID),
			item.Quantity, item.RemainingQuantity, item.PendingQuantity, item.Cost).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *txRepository) InsertAllocations(ctx context.Context, allocations []Allocation) error {
	for _, a := range allocations {
		if _, err := r.tx.Exec(ctx, `INSERT INTO stock_allocations (consumer_item_id, source_item_id, quantity, cost) VALUES ($1,$2,$3,$4)`,
			a.ConsumerItemID, a.SourceItemID, a.Quantity, a.Cost); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error) {
	return getTransaction(ctx, r.tx, id, true)
}

func (r *txRepository) ListItems(ctx context.Context, txID int64) ([]TransactionItem, error) {
	return queryItems(ctx, r.tx, itemSelect+` WHERE ti.transaction_id=$1 ORDER BY ti.id ASC FOR UPDATE OF ti`, txID)
}

func (r *txRepository) ListAllocationsByTransaction(ctx context.Context, txID int64) ([]Allocation, error) {
	rows, err := r.tx.Query(ctx, `SELECT sa.consumer_item_id, sa.source_item_id, sa.quantity, sa.cost
FROM stock_allocations sa
JOIN transaction_items ti ON ti.id = sa.consumer_item_id
WHERE ti.transaction_id=$1
ORDER BY sa.id ASC`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ConsumerItemID, &a.SourceItemID, &a.Quantity, &a.Cost); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *txRepository) CountDependentAllocations(ctx context.Context, txID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*)
FROM stock_allocations sa
JOIN transaction_items src ON src.id = sa.source_item_id
JOIN transaction_items con ON con.id = sa.consumer_item_id
WHERE src.transaction_id=$1 AND con.transaction_id<>$1`, txID).Scan(&n)
	return n, err
}

func (r *txRepository) RestoreRemaining(ctx context.Context, itemID int64, qty decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transaction_items SET remaining_quantity = remaining_quantity + $1 WHERE id=$2`, qty, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("transaction item", itemID)
	}
	return nil
}

func (r *txRepository) UpdateSaleStatus(ctx context.Context, id int64, status SaleStatus) error {
	return r.updateHeader(ctx, `UPDATE transactions SET sale_status=$1 WHERE id=$2`, string(status), id)
}

func (r *txRepository) UpdateManufacturingStatus(ctx context.Context, id int64, status ManufacturingStatus) error {
	return r.updateHeader(ctx, `UPDATE transactions SET manufacturing_status=$1 WHERE id=$2`, string(status), id)
}

func (r *txRepository) updateHeader(ctx context.Context, sql string, value string, id int64) error {
	tag, err := r.tx.Exec(ctx, sql, value, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("transaction", id)
	}
	return nil
}

func (r *txRepository) PromotePending(ctx context.Context, txID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE transaction_items
SET remaining_quantity = remaining_quantity + pending_quantity, pending_quantity = 0
WHERE transaction_id=$1 AND pending_quantity > 0`, txID)
	return err
}

func (r *txRepository) DeleteTransaction(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM transactions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("transaction", id)
	}
	return nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
