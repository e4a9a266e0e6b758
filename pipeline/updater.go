package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/antedotee/mad-project-price-tracker/config"
	"github.com/antedotee/mad-project-price-tracker/metrics"
	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/pricing"
	"github.com/antedotee/mad-project-price-tracker/store"
)

// UpdaterStore is everything a price update run reads or writes.
type UpdaterStore interface {
	store.SnapshotStore
	ListPriced(ctx context.Context, limit int) ([]models.Product, error)
	UpdatePrice(ctx context.Context, asin string, price float64) error
	ListTrackedDone(ctx context.Context) ([]models.Search, error)
}

// SearchChecker runs a price check for one search.
type SearchChecker interface {
	Check(ctx context.Context, searchID string) (*models.CheckResult, error)
}

// Invalidator drops cached copies of a product after its price changes.
type Invalidator interface {
	Invalidate(asin string)
}

// Updater appends a new price snapshot for every priced product and then
// checks every tracked search for drops.
type Updater struct {
	cfg     *config.Config
	store   UpdaterStore
	source  pricing.Source
	checker SearchChecker
	metrics *metrics.Metrics
	tracer  trace.Tracer

	invalidate Invalidator
}

// NewUpdater builds an updater. checker may be nil to skip drop checks.
func NewUpdater(cfg *config.Config, st UpdaterStore, source pricing.Source, checker SearchChecker, m *metrics.Metrics) *Updater {
	return &Updater{
		cfg:     cfg,
		store:   st,
		source:  source,
		checker: checker,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
	}
}

// SetInvalidator registers a cache to be told about price changes.
func (u *Updater) SetInvalidator(inv Invalidator) {
	u.invalidate = inv
}

// Run performs one update pass. Only a failure to list products is
// returned as an error; per-product and per-search failures are recorded
// on the result.
func (u *Updater) Run(ctx context.Context) (result *models.UpdateResult, err error) {
	ctx, span := u.tracer.Start(ctx, "Updater.Run")
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		u.metrics.ObserveUpdate(outcome, time.Since(start))
		span.End()
	}()

	listCtx, cancel := withTimeout(ctx, u.cfg.StoreTimeout)
	products, err := u.store.ListPriced(listCtx, u.cfg.BatchSize)
	cancel()
	if err != nil {
		return nil, classify("list products", err)
	}

	created := make([]bool, len(products))
	errs := make([]error, len(products))
	forEach(ctx, len(products), u.cfg.Workers, func(ctx context.Context, i int) {
		created[i], errs[i] = u.updateOne(ctx, products[i])
	})

	result = &models.UpdateResult{StartTime: start}
	for i, p := range products {
		if created[i] {
			result.SnapshotsCreated++
		}
		if errs[i] != nil {
			result.Errors = append(result.Errors, models.ProductError{ASIN: p.ASIN, Err: errs[i]})
			u.metrics.IncProductError(ErrorTypeLabel(errs[i]))
			slog.Warn("price update failed",
				slog.String("asin", p.ASIN),
				slog.String("category", ErrorTypeLabel(errs[i])),
				slog.Bool("retryable", IsRetryable(errs[i])),
				slog.Any("error", errs[i]),
			)
			continue
		}
		result.ProductsProcessed++
	}
	u.metrics.AddSnapshots(result.SnapshotsCreated)

	u.checkTracked(ctx, result)
	result.EndTime = time.Now()

	span.SetAttributes(
		attribute.Int("products", len(products)),
		attribute.Int("snapshots_created", result.SnapshotsCreated),
		attribute.Int("errors", len(result.Errors)),
		attribute.Int("searches_checked", result.TrackedSearchesChecked),
	)
	slog.Info("price update complete",
		slog.Int("products", len(products)),
		slog.Int("processed", result.ProductsProcessed),
		slog.Int("snapshots_created", result.SnapshotsCreated),
		slog.Int("errors", len(result.Errors)),
		slog.Int("searches_checked", result.TrackedSearchesChecked),
		slog.Duration("duration", result.EndTime.Sub(start)),
	)
	return result, nil
}

// updateOne appends a snapshot and refreshes the cached price. It reports
// whether the snapshot was written even when the price refresh fails.
func (u *Updater) updateOne(ctx context.Context, p models.Product) (bool, error) {
	price, err := u.source.NextPrice(ctx, p)
	if err != nil {
		return false, ErrPriceSource{Err: err}
	}

	appendCtx, cancel := withTimeout(ctx, u.cfg.StoreTimeout)
	snap, err := u.store.AppendSnapshot(appendCtx, p.ASIN, price)
	cancel()
	if err != nil {
		return false, classify("append snapshot", err)
	}

	updateCtx, cancel := withTimeout(ctx, u.cfg.StoreTimeout)
	err = u.store.UpdatePrice(updateCtx, p.ASIN, snap.Price)
	cancel()
	if err != nil {
		return true, classify("update price", err)
	}
	if u.invalidate != nil {
		u.invalidate.Invalidate(p.ASIN)
	}
	return true, nil
}

// checkTracked runs the checker for every tracked Done search. Each check
// settles on its own; failures are recorded, never propagated.
func (u *Updater) checkTracked(ctx context.Context, result *models.UpdateResult) {
	if u.checker == nil {
		return
	}

	listCtx, cancel := withTimeout(ctx, u.cfg.StoreTimeout)
	searches, err := u.store.ListTrackedDone(listCtx)
	cancel()
	if err != nil {
		result.SearchListErr = classify("list tracked searches", err)
		slog.Error("list tracked searches failed", slog.Any("error", err))
		return
	}

	outcomes := make([]models.CheckOutcome, len(searches))
	forEach(ctx, len(searches), u.cfg.Workers, func(ctx context.Context, i int) {
		id := searches[i].ID
		res, err := u.checker.Check(ctx, id)
		outcomes[i] = models.CheckOutcome{SearchID: id, Result: res, Err: err}
		if err != nil {
			slog.Error("price check failed", slog.String("search_id", id), slog.Any("error", err))
		}
	})
	result.TrackedSearchesChecked = len(searches)
	result.Checks = outcomes
}
