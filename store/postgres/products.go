package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/antedotee/mad-project-price-tracker/models"
)

const productColumns = `
	asin, name, image, url, currency, final_price::float8 AS final_price,
	brand, keyword, created_at, updated_at
`

const upsertProductQuery = `
	INSERT INTO products (asin, name, image, url, currency, final_price, brand, keyword, created_at, updated_at)
	VALUES (:asin, :name, :image, :url, :currency, :final_price, :brand, :keyword, :created_at, :updated_at)
	ON CONFLICT (asin) DO UPDATE SET
		name = EXCLUDED.name,
		image = EXCLUDED.image,
		url = EXCLUDED.url,
		currency = EXCLUDED.currency,
		final_price = COALESCE(EXCLUDED.final_price, products.final_price),
		brand = COALESCE(NULLIF(EXCLUDED.brand, ''), products.brand),
		keyword = COALESCE(NULLIF(EXCLUDED.keyword, ''), products.keyword),
		updated_at = EXCLUDED.updated_at
`

// UpsertProducts implements store.ProductStore.
func (s *Store) UpsertProducts(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	now := time.Now().UTC()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, upsertProductQuery)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range products {
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			if p.UpdatedAt.IsZero() {
				p.UpdatedAt = now
			}
			if p.Currency == "" {
				p.Currency = models.DefaultCurrency
			}
			if _, err := stmt.ExecContext(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapErr("upsert products", err)
	}
	return nil
}

const getProductQuery = `SELECT ` + productColumns + ` FROM products WHERE asin = $1`

// GetProduct implements store.ProductStore.
func (s *Store) GetProduct(ctx context.Context, asin string) (*models.Product, error) {
	var p models.Product
	if err := s.db.GetContext(ctx, &p, getProductQuery, asin); err != nil {
		return nil, wrapErr("get product", err)
	}
	return &p, nil
}

// Catalog order is insertion order, kept by the seq column.
const listProductsQuery = `
	SELECT ` + productColumns + `
	FROM products
	ORDER BY seq
	LIMIT $1
`

const listPricedQuery = `
	SELECT ` + productColumns + `
	FROM products
	WHERE final_price IS NOT NULL
	ORDER BY updated_at, seq
	LIMIT $1
`

// ListProducts implements store.ProductStore.
func (s *Store) ListProducts(ctx context.Context, limit int) ([]models.Product, error) {
	return s.list(ctx, listProductsQuery, limit)
}

// ListPriced implements store.ProductStore.
func (s *Store) ListPriced(ctx context.Context, limit int) ([]models.Product, error) {
	return s.list(ctx, listPricedQuery, limit)
}

func (s *Store) list(ctx context.Context, query string, limit int) ([]models.Product, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, query, lim); err != nil {
		return nil, wrapErr("list products", err)
	}
	return products, nil
}

const updatePriceQuery = `
	UPDATE products SET final_price = $2, updated_at = now()
	WHERE asin = $1
`

// UpdatePrice implements store.ProductStore.
func (s *Store) UpdatePrice(ctx context.Context, asin string, price float64) error {
	res, err := s.db.ExecContext(ctx, updatePriceQuery, asin, price)
	if err != nil {
		return wrapErr("update price", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrapErr("update price", sql.ErrNoRows)
	}
	return nil
}
