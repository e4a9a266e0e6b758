package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/antedotee/mad-project-price-tracker/metrics"
	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/store"
)

const tracerName = "github.com/antedotee/mad-project-price-tracker/pipeline"

// CheckerStore is everything a price check reads or writes.
type CheckerStore interface {
	DetectorStore
	store.AlertStore
	GetSearch(ctx context.Context, id string) (*models.Search, error)
}

// Checker runs detection and alert emission for one search.
type Checker struct {
	store        CheckerStore
	detector     *Detector
	emitter      *Emitter
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	tracer       trace.Tracer
}

// NewChecker wires a detector and emitter over st.
func NewChecker(st CheckerStore, workers int, storeTimeout time.Duration, m *metrics.Metrics) *Checker {
	return &Checker{
		store:        st,
		detector:     NewDetector(st, workers, storeTimeout),
		emitter:      NewEmitter(st, storeTimeout),
		metrics:      m,
		storeTimeout: storeTimeout,
		tracer:       otel.Tracer(tracerName),
	}
}

// Check loads the search and emits alerts for its price drops. An unknown
// search returns an error wrapping store.ErrNotFound.
func (c *Checker) Check(ctx context.Context, searchID string) (result *models.CheckResult, err error) {
	ctx, span := c.tracer.Start(ctx, "Checker.Check", trace.WithAttributes(attribute.String("search.id", searchID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.metrics.IncCheck("error")
		}
		span.End()
	}()

	getCtx, cancel := withTimeout(ctx, c.storeTimeout)
	search, err := c.store.GetSearch(getCtx, searchID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("search %s: %w", searchID, store.ErrNotFound)
		}
		return nil, classify("get search", err)
	}

	det, err := c.detector.Detect(ctx, search)
	if err != nil {
		return nil, err
	}
	result = &models.CheckResult{
		SearchID:   searchID,
		Skipped:    det.Skipped,
		SkipReason: det.SkipReason,
		Failed:     det.Failed,
	}
	if det.Skipped {
		slog.Info("price check skipped",
			slog.String("search_id", searchID),
			slog.String("reason", det.SkipReason),
		)
		c.metrics.IncCheck("skipped")
		return result, nil
	}

	result.PriceDropsCount = len(det.Drops)
	c.metrics.AddDrops(len(det.Drops))
	created, err := c.emitter.Emit(ctx, search, det.Drops)
	if err != nil {
		return nil, err
	}
	result.AlertsCreated = created
	c.metrics.AddAlerts(created)

	span.SetAttributes(
		attribute.Int("price_drops", result.PriceDropsCount),
		attribute.Int("alerts_created", created),
	)
	outcome := "no_drop"
	if created > 0 {
		outcome = "alerted"
	}
	c.metrics.IncCheck(outcome)

	slog.Info("price check complete",
		slog.String("search_id", searchID),
		slog.Int("products", det.Checked),
		slog.Int("price_drops", result.PriceDropsCount),
		slog.Int("alerts_created", created),
		slog.Int("read_failures", len(det.Failed)),
	)
	return result, nil
}
