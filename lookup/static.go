package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/parser"
	"github.com/antedotee/mad-project-price-tracker/store"
)

// StaticCatalogLookup serves a fixed product list, typically loaded from a
// products.json file. It is read-only after construction.
type StaticCatalogLookup struct {
	products []models.Product
	byASIN   map[string]int
	records  []parser.RawRecord
}

// LoadStaticCatalog reads a JSON array of product records from path.
func LoadStaticCatalog(path string) (*StaticCatalogLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var records []parser.RawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return NewStaticCatalog(records), nil
}

// NewStaticCatalog builds a catalog from raw records, dropping invalid ones.
func NewStaticCatalog(records []parser.RawRecord) *StaticCatalogLookup {
	products, _ := parser.FilterRecords(records, time.Time{})
	l := &StaticCatalogLookup{
		products: products,
		byASIN:   make(map[string]int, len(products)),
		records:  records,
	}
	for i, p := range products {
		l.byASIN[p.ASIN] = i
	}
	return l
}

func (l *StaticCatalogLookup) Lookup(_ context.Context, asin string) (*models.Product, error) {
	i, ok := l.byASIN[asin]
	if !ok {
		return nil, store.ErrNotFound
	}
	p := l.products[i]
	if p.FinalPrice != nil {
		p.FinalPrice = models.PriceOf(*p.FinalPrice)
	}
	return &p, nil
}

func (l *StaticCatalogLookup) Catalog(_ context.Context) ([]models.Product, error) {
	out := make([]models.Product, len(l.products))
	copy(out, l.products)
	return out, nil
}

// Records returns the raw records the catalog was built from, for seeding.
func (l *StaticCatalogLookup) Records() []parser.RawRecord {
	return l.records
}

// Len reports the number of valid products.
func (l *StaticCatalogLookup) Len() int {
	return len(l.products)
}
