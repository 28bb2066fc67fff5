package catalog

import (
	"context"
	"database/sql"

	"placemats-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Repository is the authoritative source for product price and stock.
// Checkout must never trust client-supplied prices.
type Repository interface {
	GetProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetProductsByIDs(ctx context.Context, ids []string) ([]Product, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("method", "GetProductsByIDs"),
		zap.Int("id_count", len(ids)),
	)

	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price_minor, in_stock
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		log.Error("failed to query products", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceMinor, &p.InStock); err != nil {
			log.Error("failed to scan product row", zap.Error(err))
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, err
	}

	return products, nil
}
