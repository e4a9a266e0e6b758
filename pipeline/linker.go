package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/antedotee/mad-project-price-tracker/lookup"
	"github.com/antedotee/mad-project-price-tracker/metrics"
	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/parser"
	"github.com/antedotee/mad-project-price-tracker/store"
)

// DefaultLinkLimit caps how many products a search is linked to.
const DefaultLinkLimit = 50

// Match selects the catalog products for query in catalog order, at most
// limit of them. A query without usable terms browses the first limit
// products and reports browse=true.
func Match(query string, catalog []models.Product, limit int) (products []models.Product, browse bool) {
	if limit <= 0 {
		limit = DefaultLinkLimit
	}
	terms := parser.QueryTerms(query)
	if len(terms) == 0 {
		if len(catalog) > limit {
			catalog = catalog[:limit]
		}
		return append([]models.Product(nil), catalog...), true
	}

	for _, p := range catalog {
		if len(products) == limit {
			break
		}
		if parser.MatchesAny(p, terms) {
			products = append(products, p)
		}
	}
	return products, false
}

// LinkerStore is the write surface of the linker.
type LinkerStore interface {
	store.LinkStore
	GetProduct(ctx context.Context, asin string) (*models.Product, error)
	UpsertProducts(ctx context.Context, products []models.Product) error
}

// Linker associates a search with the catalog products its query matches.
type Linker struct {
	lookup       lookup.ProductLookup
	store        LinkerStore
	limit        int
	storeTimeout time.Duration
	metrics      *metrics.Metrics
}

// NewLinker builds a linker reading the catalog through lk.
func NewLinker(lk lookup.ProductLookup, st LinkerStore, limit int, storeTimeout time.Duration, m *metrics.Metrics) *Linker {
	return &Linker{lookup: lk, store: st, limit: limit, storeTimeout: storeTimeout, metrics: m}
}

// Link matches search.Query against the catalog and upserts the links.
// Running it twice leaves the same links in place.
func (l *Linker) Link(ctx context.Context, search *models.Search) (*models.LinkResult, error) {
	catalogCtx, cancel := withTimeout(ctx, l.storeTimeout)
	catalog, err := l.lookup.Catalog(catalogCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	matched, browse := Match(search.Query, catalog, l.limit)
	result := &models.LinkResult{SearchID: search.ID, Matched: len(matched), Browse: browse}
	if browse {
		slog.Info("query has no usable terms, browsing catalog",
			slog.String("search_id", search.ID),
			slog.String("query", search.Query),
		)
	}
	if len(matched) == 0 {
		return result, nil
	}

	if err := l.ensureProducts(ctx, matched); err != nil {
		return nil, err
	}

	asins := make([]string, len(matched))
	for i, p := range matched {
		asins[i] = p.ASIN
	}
	linkCtx, cancel := withTimeout(ctx, l.storeTimeout)
	defer cancel()
	linked, err := l.store.LinkProducts(linkCtx, search.ID, asins)
	if err != nil {
		return nil, classify("link products", err)
	}
	result.Linked = linked
	l.metrics.AddLinks(linked)

	slog.Info("search linked",
		slog.String("search_id", search.ID),
		slog.Int("matched", result.Matched),
		slog.Int("linked", linked),
	)
	return result, nil
}

// ensureProducts upserts matched products that only exist in a secondary
// catalog so the links reference stored rows.
func (l *Linker) ensureProducts(ctx context.Context, matched []models.Product) error {
	var missing []models.Product
	for _, p := range matched {
		getCtx, cancel := withTimeout(ctx, l.storeTimeout)
		_, err := l.store.GetProduct(getCtx, p.ASIN)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, store.ErrNotFound):
			missing = append(missing, p)
		default:
			return classify("get product", err)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	upsertCtx, cancel := withTimeout(ctx, l.storeTimeout)
	defer cancel()
	if err := l.store.UpsertProducts(upsertCtx, missing); err != nil {
		return classify("upsert catalog products", err)
	}
	slog.Debug("copied catalog products into store", slog.Int("count", len(missing)))
	return nil
}
