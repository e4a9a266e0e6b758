package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/store"
)

const linkUpsertQuery = `
	INSERT INTO product_search (search_id, asin)
	VALUES ($1, $2)
	ON CONFLICT (asin, search_id) DO NOTHING
`

// LinkProducts implements store.LinkStore.
func (s *Store) LinkProducts(ctx context.Context, searchID string, asins []string) (int, error) {
	if _, err := uuid.Parse(searchID); err != nil {
		return 0, fmt.Errorf("link products: %w", store.ErrUnknownReference)
	}
	inserted := 0
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, asin := range asins {
			res, err := tx.ExecContext(ctx, linkUpsertQuery, searchID, asin)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, wrapErr("link products", err)
	}
	return inserted, nil
}

const linkedProductsQuery = `
	SELECT p.asin, p.name, p.image, p.url, p.currency, p.final_price::float8 AS final_price,
		p.brand, p.keyword, p.created_at, p.updated_at
	FROM product_search ps
	JOIN products p ON p.asin = ps.asin
	WHERE ps.search_id = $1
	ORDER BY ps.id
`

// LinkedProducts implements store.LinkStore.
func (s *Store) LinkedProducts(ctx context.Context, searchID string) ([]models.Product, error) {
	products := []models.Product{}
	if _, err := uuid.Parse(searchID); err != nil {
		return products, nil
	}
	if err := s.db.SelectContext(ctx, &products, linkedProductsQuery, searchID); err != nil {
		return nil, wrapErr("linked products", err)
	}
	return products, nil
}
