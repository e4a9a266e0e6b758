// Package store defines the persistence contracts of the tracker. The
// memory and postgres subpackages implement them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/antedotee/mad-project-price-tracker/models"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownReference is returned when a write names a search or
	// product that does not exist.
	ErrUnknownReference = errors.New("unknown search or product")
	// ErrInvalidAlert is returned for an alert whose old price is not
	// above its new price.
	ErrInvalidAlert = errors.New("alert old price must exceed new price")
)

// SnapshotStore is the append-only price history.
type SnapshotStore interface {
	// AppendSnapshot records price for asin. Equal consecutive prices are
	// accepted.
	AppendSnapshot(ctx context.Context, asin string, price float64) (*models.Snapshot, error)
	// LatestTwo returns up to two snapshots for asin, newest first.
	LatestTwo(ctx context.Context, asin string) ([]models.Snapshot, error)
	// History returns up to limit snapshots for asin, newest first.
	History(ctx context.Context, asin string, limit int) ([]models.Snapshot, error)
}

type ProductStore interface {
	// UpsertProducts inserts or updates products keyed by ASIN. CreatedAt
	// of an existing product is preserved, as are its price, brand and
	// keyword when the incoming product leaves them empty.
	UpsertProducts(ctx context.Context, products []models.Product) error
	GetProduct(ctx context.Context, asin string) (*models.Product, error)
	// ListProducts returns up to limit products in catalog order.
	ListProducts(ctx context.Context, limit int) ([]models.Product, error)
	// ListPriced returns up to limit products with a current price, least
	// recently updated first, so repeated batches cycle the whole catalog.
	ListPriced(ctx context.Context, limit int) ([]models.Product, error)
	// UpdatePrice sets the cached current price of asin.
	UpdatePrice(ctx context.Context, asin string, price float64) error
}

type SearchStore interface {
	CreateSearch(ctx context.Context, s *models.Search) error
	GetSearch(ctx context.Context, id string) (*models.Search, error)
	// SetTracked overwrites the tracked flag and returns the updated search.
	SetTracked(ctx context.Context, id string, tracked bool) (*models.Search, error)
	// UpdateStatus sets the status. Non-nil scrapedAt and jobID are stored
	// as well.
	UpdateStatus(ctx context.Context, id string, status models.SearchStatus, scrapedAt *time.Time, jobID *string) (*models.Search, error)
	// ListTrackedDone returns tracked searches whose status is Done.
	ListTrackedDone(ctx context.Context) ([]models.Search, error)
}

type LinkStore interface {
	// LinkProducts associates asins with the search. Existing pairs are
	// left untouched; the count of new pairs is returned.
	LinkProducts(ctx context.Context, searchID string, asins []string) (int, error)
	// LinkedProducts returns the products linked to the search.
	LinkedProducts(ctx context.Context, searchID string) ([]models.Product, error)
}

type AlertStore interface {
	// UnreadASINs returns the ASINs with an unread alert for the search.
	UnreadASINs(ctx context.Context, searchID string) (map[string]struct{}, error)
	// InsertAlerts persists alerts in one batch. An alert whose (search,
	// ASIN) pair already has an unread alert is skipped; the count of
	// inserted alerts is returned.
	InsertAlerts(ctx context.Context, alerts []models.Alert) (int, error)
	// ListAlerts returns the user's alerts, newest first.
	ListAlerts(ctx context.Context, userID string, unreadOnly bool) ([]models.Alert, error)
	MarkAlertRead(ctx context.Context, id string) (*models.Alert, error)
}

// Store is the full persistence surface used by the tracker.
type Store interface {
	SnapshotStore
	ProductStore
	SearchStore
	LinkStore
	AlertStore

	Ping(ctx context.Context) error
	Close() error
}
