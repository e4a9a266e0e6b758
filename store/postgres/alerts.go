package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/store"
)

const alertColumns = `
	id::text AS id, search_id::text AS search_id, asin, product_name, product_url,
	old_price::float8 AS old_price, new_price::float8 AS new_price,
	price_drop_amount::float8 AS price_drop_amount,
	price_drop_percent::float8 AS price_drop_percent,
	is_read, user_id, created_at
`

const unreadASINsQuery = `
	SELECT asin FROM price_drop_alerts
	WHERE search_id = $1 AND NOT is_read
`

// UnreadASINs implements store.AlertStore.
func (s *Store) UnreadASINs(ctx context.Context, searchID string) (map[string]struct{}, error) {
	unread := make(map[string]struct{})
	if _, err := uuid.Parse(searchID); err != nil {
		return unread, nil
	}
	var asins []string
	if err := s.db.SelectContext(ctx, &asins, unreadASINsQuery, searchID); err != nil {
		return nil, wrapErr("unread alerts", err)
	}
	for _, asin := range asins {
		unread[asin] = struct{}{}
	}
	return unread, nil
}

// The partial unique index makes a second unread alert for a pair a no-op.
const insertAlertQuery = `
	INSERT INTO price_drop_alerts (
		id, search_id, asin, product_name, product_url, old_price, new_price,
		price_drop_amount, price_drop_percent, user_id, created_at
	) VALUES (
		:id, :search_id, :asin, :product_name, :product_url, :old_price, :new_price,
		:price_drop_amount, :price_drop_percent, :user_id, :created_at
	)
	ON CONFLICT (search_id, asin) WHERE NOT is_read DO NOTHING
`

// InsertAlerts implements store.AlertStore.
func (s *Store) InsertAlerts(ctx context.Context, alerts []models.Alert) (int, error) {
	if len(alerts) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	inserted := 0
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, insertAlertQuery)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range alerts {
			if a.OldPrice <= a.NewPrice {
				return store.ErrInvalidAlert
			}
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			if a.CreatedAt.IsZero() {
				a.CreatedAt = now
			}
			res, err := stmt.ExecContext(ctx, a)
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
		return 0, wrapErr("insert alerts", err)
	}
	return inserted, nil
}

const listAlertsQuery = `
	SELECT ` + alertColumns + `
	FROM price_drop_alerts
	WHERE user_id = $1 AND ($2 = false OR NOT is_read)
	ORDER BY created_at DESC, id
`

// ListAlerts implements store.AlertStore.
func (s *Store) ListAlerts(ctx context.Context, userID string, unreadOnly bool) ([]models.Alert, error) {
	alerts := []models.Alert{}
	if err := s.db.SelectContext(ctx, &alerts, listAlertsQuery, userID, unreadOnly); err != nil {
		return nil, wrapErr("list alerts", err)
	}
	return alerts, nil
}

const markAlertReadQuery = `
	UPDATE price_drop_alerts SET is_read = true
	WHERE id = $1
	RETURNING ` + alertColumns

// MarkAlertRead implements store.AlertStore.
func (s *Store) MarkAlertRead(ctx context.Context, id string) (*models.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	var alert models.Alert
	if err := s.db.QueryRowxContext(ctx, markAlertReadQuery, id).StructScan(&alert); err != nil {
		return nil, wrapErr("mark alert read", err)
	}
	return &alert, nil
}
