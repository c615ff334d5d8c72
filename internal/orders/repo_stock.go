package orders

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StockRepo applies signed adjustments to the catalog's stock counters.
// The catalog is otherwise read-only from this subsystem; stock is the
// only field it mutates.
type StockRepo struct{ DB *pgxpool.Pool }

func (r *StockRepo) AdjustProductStock(ctx context.Context, productID string, delta int) error {
	return r.adjust(ctx, "products", productID, delta)
}

func (r *StockRepo) AdjustVariantStock(ctx context.Context, variantID string, delta int) error {
	return r.adjust(ctx, "product_variants", variantID, delta)
}

// adjust issues one atomic statement per SKU, never read-then-write:
// two concurrent decrements must not both observe the pre-decrement
// value. NULL stock means unlimited and stays NULL. The guard refuses
// to take a counter below zero and reports ErrStockConflict instead.
func (r *StockRepo) adjust(ctx context.Context, table, id string, delta int) error {
	var stmt string
	switch table {
	case "products":
		stmt = `UPDATE products SET stock = stock + $2, updated_at = now()
		        WHERE id = $1 AND (stock IS NULL OR stock + $2 >= 0)`
	case "product_variants":
		stmt = `UPDATE product_variants SET stock = stock + $2, updated_at = now()
		        WHERE id = $1 AND (stock IS NULL OR stock + $2 >= 0)`
	}

	ct, err := r.DB.Exec(ctx, stmt, id, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrStockConflict
	}
	return ErrNotFound
}
