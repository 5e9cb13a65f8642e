package production

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-erp/atelier/internal/ledger"
	"github.com/atelier-erp/atelier/internal/platform/db"
	"github.com/atelier-erp/atelier/internal/shared"
)

// Repository persists production runs on top of the ledger tables.
type Repository struct {
	pool   *pgxpool.Pool
	ledger *ledger.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, ledger: ledger.NewRepository(pool)}
}

type txRepository struct {
	ledger.TxRepository
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: ledger.NewTxRepository(tx), tx: tx})
	})
}

// GetRun loads a transaction with its lines and overhead.
func (r *Repository) GetRun(ctx context.Context, id int64) (Run, error) {
	header, err := r.ledger.GetTransaction(ctx, id)
	if err != nil {
		return Run{}, err
	}
	costs, err := listCostItems(ctx, r.pool, id)
	if err != nil {
		return Run{}, err
	}
	return Run{Transaction: header, CostItems: costs}, nil
}

// ListCostCategories returns every manufacturing cost category.
func (r *Repository) ListCostCategories(ctx context.Context) ([]CostCategory, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM manufacturing_costs ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CostCategory
	for rows.Next() {
		var c CostCategory
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertCostItems(ctx context.Context, txID int64, costs []CostInput) ([]CostItem, error) {
	out := make([]CostItem, 0, len(costs))
	for _, c := range costs {
		item := CostItem{TransactionID: txID, ManufacturingCostID: c.ManufacturingCostID, Cost: c.Cost}
		err := r.tx.QueryRow(ctx, `INSERT INTO manufacturing_cost_items (transaction_id, manufacturing_cost_id, cost)
VALUES ($1,$2,$3)
RETURNING id, (SELECT name FROM manufacturing_costs WHERE id = $2)`, txID, c.ManufacturingCostID, c.Cost).Scan(&item.ID, &item.Name)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return nil, shared.Referential("manufacturing_cost", fmt.Sprintf("manufacturing cost %d does not exist", c.ManufacturingCostID))
			}
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *txRepository) ListCostItems(ctx context.Context, txID int64) ([]CostItem, error) {
	return listCostItems(ctx, r.tx, txID)
}

func (r *txRepository) DeleteCostItems(ctx context.Context, txID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM manufacturing_cost_items WHERE transaction_id = $1`, txID)
	return err
}

type rowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listCostItems(ctx context.Context, q rowsQuerier, txID int64) ([]CostItem, error) {
	rows, err := q.Query(ctx, `SELECT mci.id, mci.transaction_id, mci.manufacturing_cost_id, mc.name, mci.cost
FROM manufacturing_cost_items mci
JOIN manufacturing_costs mc ON mc.id = mci.manufacturing_cost_id
WHERE mci.transaction_id = $1
ORDER BY mci.id ASC`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CostItem{}
	for rows.Next() {
		var c CostItem
		if err := rows.Scan(&c.ID, &c.TransactionID, &c.ManufacturingCostID, &c.Name, &c.Cost); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
