package catalog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo reads the product catalog. This subsystem never writes through
// it; stock mutation goes through the stock ledger.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	if len(ids) == 0 {
		return map[string]Product{}, nil
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, name, slug, status, currency, price_minor, stock
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Status, &p.Currency, &p.PriceMinor, &p.Stock); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vrows, err := r.DB.Query(ctx, `
		SELECT id, product_id, label, price_override_minor, stock
		FROM product_variants WHERE product_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer vrows.Close()

	for vrows.Next() {
		var v Variant
		if err := vrows.Scan(&v.ID, &v.ProductID, &v.Label, &v.PriceOverrideMinor, &v.Stock); err != nil {
			return nil, err
		}
		p, ok := out[v.ProductID]
		if !ok {
			continue
		}
		p.Variants = append(p.Variants, v)
		out[v.ProductID] = p
	}
	return out, vrows.Err()
}
