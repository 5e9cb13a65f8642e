package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a catalog row does not exist.
var ErrNotFound = errors.New("catalog: not found")

type Repository interface {
	ProductSizeID(ctx context.Context, productID, sizeID int64) (int64, error)
	ColorExists(ctx context.Context, colorID int64) (bool, error)
	ProductExists(ctx context.Context, productID int64) (bool, error)
	Material(ctx context.Context, id int64) (Material, error)
	BOM(ctx context.Context, productID int64) ([]BOMLine, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) ProductSizeID(ctx context.Context, productID, sizeID int64) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM product_sizes WHERE product_id = $1 AND size_id = $2`, productID, sizeID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

func (r *repository) ColorExists(ctx context.Context, colorID int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM colors WHERE id = $1)`, colorID)
}

func (r *repository) ProductExists(ctx context.Context, productID int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID)
}

func (r *repository) exists(ctx context.Context, query string, id int64) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, query, id).Scan(&ok)
	return ok, err
}

func (r *repository) Material(ctx context.Context, id int64) (Material, error) {
	var m Material
	err := r.db.QueryRow(ctx, `SELECT m.id, m.name, COALESCE(u.name, '')
FROM materials m
LEFT JOIN units u ON u.id = m.unit_id
WHERE m.id = $1`, id).Scan(&m.ID, &m.Name, &m.Unit)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, ErrNotFound
	}
	return m, err
}

func (r *repository) BOM(ctx context.Context, productID int64) ([]BOMLine, error) {
	rows, err := r.db.Query(ctx, `SELECT bli.material_id, m.name, COALESCE(u.name, ''), bli.quantity
FROM bill_of_materials bom
JOIN bom_list_items bli ON bli.bom_id = bom.id
JOIN materials m ON m.id = bli.material_id
LEFT JOIN units u ON u.id = m.unit_id
WHERE bom.product_id = $1
ORDER BY bli.id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []BOMLine{}
	for rows.Next() {
		var line BOMLine
		if err := rows.Scan(&line.MaterialID, &line.MaterialName, &line.Unit, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
