package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/antedotee/mad-project-price-tracker/lookup"
	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/parser"
)

func catalogOf(n int) []models.Product {
	out := make([]models.Product, n)
	for i := range out {
		out[i] = models.Product{ASIN: fmt.Sprintf("C%03d", i), Name: fmt.Sprintf("Gadget %d", i)}
	}
	return out
}

func TestMatch(t *testing.T) {
	catalog := []models.Product{
		{ASIN: "A1", Name: "Apple iPhone 12"},
		{ASIN: "A2", Name: "Kindle Paperwhite", Brand: "Amazon"},
		{ASIN: "A3", Name: "Phone case", Keyword: "iphone accessories"},
		{ASIN: "A4", Name: "Echo Dot"},
	}

	tests := []struct {
		name       string
		query      string
		limit      int
		wantASINs  []string
		wantBrowse bool
	}{
		{name: "case-insensitive substring", query: "iPhone", limit: 50, wantASINs: []string{"A1", "A3"}},
		{name: "brand match", query: "amazon", limit: 50, wantASINs: []string{"A2"}},
		{name: "any term matches", query: "echo kindle", limit: 50, wantASINs: []string{"A2", "A4"}},
		{name: "no match", query: "xyz", limit: 50, wantASINs: nil},
		{name: "limit applies in catalog order", query: "phone", limit: 1, wantASINs: []string{"A1"}},
		{name: "only short terms browse", query: " a b ", limit: 2, wantASINs: []string{"A1", "A2"}, wantBrowse: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, browse := Match(tt.query, catalog, tt.limit)
			if browse != tt.wantBrowse {
				t.Fatalf("browse = %v, want %v", browse, tt.wantBrowse)
			}
			if len(got) != len(tt.wantASINs) {
				t.Fatalf("matched %d products, want %d", len(got), len(tt.wantASINs))
			}
			for i, asin := range tt.wantASINs {
				if got[i].ASIN != asin {
					t.Fatalf("match[%d] = %s, want %s", i, got[i].ASIN, asin)
				}
			}
		})
	}
}

func TestMatchEmptyQueryBrowsesFirstFifty(t *testing.T) {
	got, browse := Match("", catalogOf(60), DefaultLinkLimit)
	if !browse {
		t.Fatalf("expected browse mode")
	}
	if len(got) != 50 || got[0].ASIN != "C000" || got[49].ASIN != "C049" {
		t.Fatalf("browse returned %d products starting %s", len(got), got[0].ASIN)
	}
}

func TestLinkIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, product("A1", "Apple iPhone 12", 699), product("A2", "Kindle", 99))
	search := newSearch(t, st, "u1", "iphone", false)
	linker := NewLinker(lookup.PrimaryStoreLookup{Store: st}, st, 50, time.Second, nil)

	first, err := linker.Link(ctx, search)
	if err != nil {
		t.Fatalf("first link: %v", err)
	}
	second, err := linker.Link(ctx, search)
	if err != nil {
		t.Fatalf("second link: %v", err)
	}
	if first.Matched != 1 || first.Linked != 1 {
		t.Fatalf("first = %+v", first)
	}
	if second.Matched != 1 || second.Linked != 0 {
		t.Fatalf("second = %+v", second)
	}

	linked, _ := st.LinkedProducts(ctx, search.ID)
	if len(linked) != 1 || linked[0].ASIN != "A1" {
		t.Fatalf("linked = %+v", linked)
	}
}

func TestLinkCopiesStaticCatalogProducts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	search := newSearch(t, st, "u1", "echo", false)
	static := lookup.NewStaticCatalog([]parser.RawRecord{
		{ASIN: "S1", Name: "Echo Dot", FinalPrice: parser.FlexPrice{Value: 49.99, Valid: true}},
		{ASIN: "S2", Name: "Fire TV Stick"},
	})
	lk := lookup.NewFallback(lookup.PrimaryStoreLookup{Store: st}, static)

	res, err := NewLinker(lk, st, 50, time.Second, nil).Link(ctx, search)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if res.Linked != 1 {
		t.Fatalf("linked = %d, want 1", res.Linked)
	}
	p, err := st.GetProduct(ctx, "S1")
	if err != nil {
		t.Fatalf("static product not copied into store: %v", err)
	}
	if !p.HasPrice() || *p.FinalPrice != 49.99 {
		t.Fatalf("copied product = %+v", p)
	}
}
