package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/pricing"
	"github.com/antedotee/mad-project-price-tracker/store"
)

// SkipNotTracked is the skip reason for searches that are not tracked.
const SkipNotTracked = "not tracked"

// DetectorStore is the read surface the detector needs.
type DetectorStore interface {
	store.LinkStore
	store.SnapshotStore
}

// Detection is the outcome of scanning one search for price drops.
type Detection struct {
	SearchID   string
	Checked    int
	Drops      []models.Drop
	Skipped    bool
	SkipReason string
	Failed     []models.ProductError
}

// Detector compares the two most recent snapshots of every product linked
// to a search. It never writes.
type Detector struct {
	store        DetectorStore
	workers      int
	storeTimeout time.Duration
}

// NewDetector builds a detector reading through st.
func NewDetector(st DetectorStore, workers int, storeTimeout time.Duration) *Detector {
	return &Detector{store: st, workers: workers, storeTimeout: storeTimeout}
}

// Detect returns the drops for search. Untracked searches are skipped
// without reading anything.
func (d *Detector) Detect(ctx context.Context, search *models.Search) (*Detection, error) {
	det := &Detection{SearchID: search.ID}
	if !search.Tracked {
		det.Skipped = true
		det.SkipReason = SkipNotTracked
		return det, nil
	}

	linkCtx, cancel := withTimeout(ctx, d.storeTimeout)
	products, err := d.store.LinkedProducts(linkCtx, search.ID)
	cancel()
	if err != nil {
		return nil, classify("linked products", err)
	}

	drops := make([]*models.Drop, len(products))
	errs := make([]error, len(products))
	forEach(ctx, len(products), d.workers, func(ctx context.Context, i int) {
		drops[i], errs[i] = d.compare(ctx, products[i])
	})

	det.Checked = len(products)
	for i, p := range products {
		if errs[i] != nil {
			slog.Warn("snapshot read failed",
				slog.String("search_id", search.ID),
				slog.String("asin", p.ASIN),
				slog.Any("error", errs[i]),
			)
			det.Failed = append(det.Failed, models.ProductError{ASIN: p.ASIN, Err: errs[i]})
			continue
		}
		if drops[i] != nil {
			det.Drops = append(det.Drops, *drops[i])
		}
	}
	return det, nil
}

// compare returns a drop when exactly two snapshots exist and the newest is
// cheaper than the one before it.
func (d *Detector) compare(ctx context.Context, p models.Product) (*models.Drop, error) {
	ctx, cancel := withTimeout(ctx, d.storeTimeout)
	defer cancel()

	snaps, err := d.store.LatestTwo(ctx, p.ASIN)
	if err != nil {
		return nil, classify("latest snapshots", err)
	}
	if len(snaps) != 2 {
		return nil, nil
	}
	newest, previous := snaps[0], snaps[1]
	if !pricing.Less(newest.Price, previous.Price) {
		return nil, nil
	}
	return &models.Drop{
		Product:  p,
		OldPrice: pricing.Round2(previous.Price),
		NewPrice: pricing.Round2(newest.Price),
	}, nil
}
