package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/store"
)

const searchColumns = `
	id::text AS id, user_id, query, status, is_tracked, last_scraped_at,
	snapshot_id, created_at
`

const createSearchQuery = `
	INSERT INTO searches (id, user_id, query, status, is_tracked, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// CreateSearch implements store.SearchStore.
func (s *Store) CreateSearch(ctx context.Context, search *models.Search) error {
	if search.ID == "" {
		search.ID = uuid.NewString()
	}
	if search.Status == "" {
		search.Status = models.StatusPending
	}
	if search.CreatedAt.IsZero() {
		search.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, createSearchQuery,
		search.ID, search.UserID, search.Query, search.Status, search.Tracked, search.CreatedAt)
	if err != nil {
		return wrapErr("create search", err)
	}
	return nil
}

const getSearchQuery = `SELECT ` + searchColumns + ` FROM searches WHERE id = $1`

// GetSearch implements store.SearchStore.
func (s *Store) GetSearch(ctx context.Context, id string) (*models.Search, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	var search models.Search
	if err := s.db.GetContext(ctx, &search, getSearchQuery, id); err != nil {
		return nil, wrapErr("get search", err)
	}
	return &search, nil
}

const setTrackedQuery = `
	UPDATE searches SET is_tracked = $2
	WHERE id = $1
	RETURNING ` + searchColumns

// SetTracked implements store.SearchStore.
func (s *Store) SetTracked(ctx context.Context, id string, tracked bool) (*models.Search, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	var search models.Search
	if err := s.db.QueryRowxContext(ctx, setTrackedQuery, id, tracked).StructScan(&search); err != nil {
		return nil, wrapErr("set tracked", err)
	}
	return &search, nil
}

const updateStatusQuery = `
	UPDATE searches SET
		status = $2,
		last_scraped_at = COALESCE($3, last_scraped_at),
		snapshot_id = COALESCE($4, snapshot_id)
	WHERE id = $1
	RETURNING ` + searchColumns

// UpdateStatus implements store.SearchStore.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.SearchStatus, scrapedAt *time.Time, jobID *string) (*models.Search, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	var search models.Search
	err := s.db.QueryRowxContext(ctx, updateStatusQuery, id, status, scrapedAt, jobID).StructScan(&search)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("update status to %s", status), err)
	}
	return &search, nil
}

const listTrackedDoneQuery = `
	SELECT ` + searchColumns + `
	FROM searches
	WHERE is_tracked AND status = $1
	ORDER BY created_at, id
`

// ListTrackedDone implements store.SearchStore.
func (s *Store) ListTrackedDone(ctx context.Context) ([]models.Search, error) {
	searches := []models.Search{}
	if err := s.db.SelectContext(ctx, &searches, listTrackedDoneQuery, models.StatusDone); err != nil {
		return nil, wrapErr("list tracked searches", err)
	}
	return searches, nil
}
