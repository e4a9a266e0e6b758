package postgres

import (
	"context"

	"github.com/antedotee/mad-project-price-tracker/models"
)

const appendSnapshotQuery = `
	INSERT INTO product_snapshot (asin, final_price)
	VALUES ($1, $2)
	RETURNING id, asin, final_price::float8 AS final_price, created_at
`

// AppendSnapshot implements store.SnapshotStore.
func (s *Store) AppendSnapshot(ctx context.Context, asin string, price float64) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := s.db.QueryRowxContext(ctx, appendSnapshotQuery, asin, price).StructScan(&snap); err != nil {
		return nil, wrapErr("append snapshot", err)
	}
	return &snap, nil
}

const historyQuery = `
	SELECT id, asin, final_price::float8 AS final_price, created_at
	FROM product_snapshot
	WHERE asin = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2
`

// LatestTwo implements store.SnapshotStore.
func (s *Store) LatestTwo(ctx context.Context, asin string) ([]models.Snapshot, error) {
	return s.History(ctx, asin, 2)
}

// History implements store.SnapshotStore. A non-positive limit returns the
// whole history.
func (s *Store) History(ctx context.Context, asin string, limit int) ([]models.Snapshot, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	snaps := []models.Snapshot{}
	if err := s.db.SelectContext(ctx, &snaps, historyQuery, asin, lim); err != nil {
		return nil, wrapErr("snapshot history", err)
	}
	return snaps, nil
}
