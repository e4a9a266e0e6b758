package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/pricing"
	"github.com/antedotee/mad-project-price-tracker/store"
)

// Emitter turns drops into alerts, at most one unread alert per (search,
// product) pair.
type Emitter struct {
	store        store.AlertStore
	storeTimeout time.Duration
	now          func() time.Time
}

// NewEmitter builds an emitter writing through st.
func NewEmitter(st store.AlertStore, storeTimeout time.Duration) *Emitter {
	return &Emitter{store: st, storeTimeout: storeTimeout, now: time.Now}
}

// Emit persists alerts for drops not already covered by an unread alert and
// returns how many were written.
func (e *Emitter) Emit(ctx context.Context, search *models.Search, drops []models.Drop) (int, error) {
	if len(drops) == 0 {
		return 0, nil
	}

	readCtx, cancel := withTimeout(ctx, e.storeTimeout)
	unread, err := e.store.UnreadASINs(readCtx, search.ID)
	cancel()
	if err != nil {
		return 0, classify("unread alerts", err)
	}

	now := e.now()
	alerts := make([]models.Alert, 0, len(drops))
	for _, d := range drops {
		if _, ok := unread[d.Product.ASIN]; ok {
			continue
		}
		// a product linked twice must not alert twice in one batch
		unread[d.Product.ASIN] = struct{}{}
		alerts = append(alerts, newAlert(search, d, now))
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	writeCtx, cancel := withTimeout(ctx, e.storeTimeout)
	defer cancel()
	inserted, err := e.store.InsertAlerts(writeCtx, alerts)
	if err != nil {
		return 0, classify("insert alerts", err)
	}
	return inserted, nil
}

func newAlert(search *models.Search, d models.Drop, now time.Time) models.Alert {
	return models.Alert{
		ID:          uuid.NewString(),
		SearchID:    search.ID,
		ASIN:        d.Product.ASIN,
		ProductName: d.Product.Name,
		ProductURL:  d.Product.URL,
		OldPrice:    d.OldPrice,
		NewPrice:    d.NewPrice,
		DropAmount:  pricing.DropAmount(d.OldPrice, d.NewPrice),
		DropPercent: pricing.DropPercent(d.OldPrice, d.NewPrice),
		UserID:      search.UserID,
		CreatedAt:   now,
	}
}
