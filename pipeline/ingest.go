package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/antedotee/mad-project-price-tracker/metrics"
	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/parser"
	"github.com/antedotee/mad-project-price-tracker/store"
)

// IngestStore is the write surface for scrape results.
type IngestStore interface {
	UpsertProducts(ctx context.Context, products []models.Product) error
	AppendSnapshot(ctx context.Context, asin string, price float64) (*models.Snapshot, error)
	LinkProducts(ctx context.Context, searchID string, asins []string) (int, error)
	GetSearch(ctx context.Context, id string) (*models.Search, error)
	UpdateStatus(ctx context.Context, id string, status models.SearchStatus, scrapedAt *time.Time, jobID *string) (*models.Search, error)
}

// Ingestor saves vendor scrape results: products, their initial price
// snapshots and the links to the search that requested them.
type Ingestor struct {
	store        IngestStore
	storeTimeout time.Duration
	metrics      *metrics.Metrics
	invalidate   Invalidator
	now          func() time.Time
}

func NewIngestor(st IngestStore, storeTimeout time.Duration, m *metrics.Metrics) *Ingestor {
	return &Ingestor{store: st, storeTimeout: storeTimeout, metrics: m, now: time.Now}
}

// SetInvalidator registers a cache to be told about product rewrites.
func (in *Ingestor) SetInvalidator(inv Invalidator) {
	in.invalidate = inv
}

// Ingest stores records for searchID and marks the search Done. Records
// missing an ASIN or name are dropped; a batch with none left still
// completes the search.
func (in *Ingestor) Ingest(ctx context.Context, searchID string, records []parser.RawRecord) (*models.IngestResult, error) {
	getCtx, cancel := withTimeout(ctx, in.storeTimeout)
	_, err := in.store.GetSearch(getCtx, searchID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("search %s: %w", searchID, store.ErrNotFound)
		}
		return nil, classify("get search", err)
	}

	now := in.now()
	products, dropped := parser.FilterRecords(records, now)
	result := &models.IngestResult{SearchID: searchID, Received: len(records)}
	if dropped > 0 {
		slog.Warn("dropped invalid scrape records",
			slog.String("search_id", searchID),
			slog.Int("dropped", dropped),
		)
	}

	if len(products) > 0 {
		if err := in.save(ctx, products, result); err != nil {
			return nil, err
		}

		asins := make([]string, len(products))
		for i, p := range products {
			asins[i] = p.ASIN
		}
		linkCtx, cancel := withTimeout(ctx, in.storeTimeout)
		linked, err := in.store.LinkProducts(linkCtx, searchID, asins)
		cancel()
		if err != nil {
			return nil, classify("link products", err)
		}
		result.Linked = linked
		in.metrics.AddLinks(linked)
	}

	doneCtx, cancel := withTimeout(ctx, in.storeTimeout)
	defer cancel()
	if _, err := in.store.UpdateStatus(doneCtx, searchID, models.StatusDone, &now, nil); err != nil {
		return nil, classify("mark search done", err)
	}

	slog.Info("scrape results ingested",
		slog.String("search_id", searchID),
		slog.Int("received", result.Received),
		slog.Int("products_saved", result.ProductsSaved),
		slog.Int("snapshots_created", result.SnapshotsCreated),
	)
	return result, nil
}

// Seed stores catalog records without a search, giving priced products
// their first snapshot.
func (in *Ingestor) Seed(ctx context.Context, records []parser.RawRecord) (*models.IngestResult, error) {
	products, _ := parser.FilterRecords(records, in.now())
	result := &models.IngestResult{Received: len(records)}
	if len(products) == 0 {
		return result, nil
	}
	if err := in.save(ctx, products, result); err != nil {
		return nil, err
	}
	slog.Info("catalog seeded",
		slog.Int("products_saved", result.ProductsSaved),
		slog.Int("snapshots_created", result.SnapshotsCreated),
	)
	return result, nil
}

// save upserts products and appends an initial snapshot for each priced
// one. Snapshot failures are logged and leave the product saved.
func (in *Ingestor) save(ctx context.Context, products []models.Product, result *models.IngestResult) error {
	upsertCtx, cancel := withTimeout(ctx, in.storeTimeout)
	err := in.store.UpsertProducts(upsertCtx, products)
	cancel()
	if err != nil {
		return classify("upsert products", err)
	}
	result.ProductsSaved = len(products)
	in.metrics.AddIngested(len(products))

	for _, p := range products {
		if in.invalidate != nil {
			in.invalidate.Invalidate(p.ASIN)
		}
		if !p.HasPrice() {
			continue
		}
		snapCtx, cancel := withTimeout(ctx, in.storeTimeout)
		_, err := in.store.AppendSnapshot(snapCtx, p.ASIN, *p.FinalPrice)
		cancel()
		if err != nil {
			slog.Warn("initial snapshot failed", slog.String("asin", p.ASIN), slog.Any("error", err))
			continue
		}
		result.SnapshotsCreated++
	}
	in.metrics.AddSnapshots(result.SnapshotsCreated)
	return nil
}
