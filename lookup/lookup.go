// Package lookup resolves products from a primary store with a static
// catalog file as the secondary tier.
package lookup

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/store"
)

// ProductLookup reads products by ASIN or as a whole catalog.
type ProductLookup interface {
	Lookup(ctx context.Context, asin string) (*models.Product, error)
	// Catalog returns every product in catalog order.
	Catalog(ctx context.Context) ([]models.Product, error)
}

// PrimaryStoreLookup reads from the product store.
type PrimaryStoreLookup struct {
	Store store.ProductStore
}

func (l PrimaryStoreLookup) Lookup(ctx context.Context, asin string) (*models.Product, error) {
	return l.Store.GetProduct(ctx, asin)
}

func (l PrimaryStoreLookup) Catalog(ctx context.Context) ([]models.Product, error) {
	return l.Store.ListProducts(ctx, 0)
}

// Fallback tries each tier in order. For Lookup the first success wins; for
// Catalog the first non-empty result wins.
type Fallback struct {
	Tiers []ProductLookup
}

// NewFallback composes tiers, skipping nil ones.
func NewFallback(tiers ...ProductLookup) *Fallback {
	f := &Fallback{}
	for _, t := range tiers {
		if t != nil {
			f.Tiers = append(f.Tiers, t)
		}
	}
	return f
}

func (f *Fallback) Lookup(ctx context.Context, asin string) (*models.Product, error) {
	var errs []error
	for _, tier := range f.Tiers {
		p, err := tier.Lookup(ctx, asin)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("lookup %s: %w", asin, errors.Join(errs...))
	}
	return nil, store.ErrNotFound
}

func (f *Fallback) Catalog(ctx context.Context) ([]models.Product, error) {
	var errs []error
	for _, tier := range f.Tiers {
		products, err := tier.Catalog(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(products) > 0 {
			return products, nil
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog: %w", errors.Join(errs...))
	}
	return nil, nil
}

// Cached memoizes single-product lookups in an LRU. Catalog reads are not
// cached. Entries may be stale with respect to later price updates.
type Cached struct {
	next  ProductLookup
	cache *lru.Cache[string, models.Product]
}

// NewCached wraps next with an LRU of the given size.
func NewCached(next ProductLookup, size int) (*Cached, error) {
	cache, err := lru.New[string, models.Product](size)
	if err != nil {
		return nil, fmt.Errorf("create lookup cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Lookup(ctx context.Context, asin string) (*models.Product, error) {
	if p, ok := c.cache.Get(asin); ok {
		return &p, nil
	}
	p, err := c.next.Lookup(ctx, asin)
	if err != nil {
		return nil, err
	}
	c.cache.Add(asin, *p)
	return p, nil
}

func (c *Cached) Catalog(ctx context.Context) ([]models.Product, error) {
	return c.next.Catalog(ctx)
}

// Invalidate drops asin from the cache.
func (c *Cached) Invalidate(asin string) {
	c.cache.Remove(asin)
}
