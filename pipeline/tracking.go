package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/store"
)

// Tracking flips the tracked flag of a search. The last write wins; the
// updater and detector read the flag when they run.
type Tracking struct {
	store        store.SearchStore
	storeTimeout time.Duration
}

// NewTracking returns a Tracking bounding each store call by storeTimeout.
func NewTracking(st store.SearchStore, storeTimeout time.Duration) *Tracking {
	return &Tracking{store: st, storeTimeout: storeTimeout}
}

// SetTracked stores value as the tracked flag of searchID and returns the
// updated search. An unknown search yields store.ErrNotFound.
func (t *Tracking) SetTracked(ctx context.Context, searchID string, value bool) (*models.Search, error) {
	ctx, cancel := withTimeout(ctx, t.storeTimeout)
	defer cancel()

	search, err := t.store.SetTracked(ctx, searchID, value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("search %s: %w", searchID, store.ErrNotFound)
		}
		return nil, classify("set tracked", err)
	}
	slog.Info("search tracking changed", slog.String("search_id", searchID), slog.Bool("tracked", value))
	return search, nil
}
