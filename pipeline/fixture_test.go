package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/antedotee/mad-project-price-tracker/config"
	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/store/memory"
)

var errInjected = errors.New("injected failure")

// steppingClock advances one second per call so snapshot order follows
// insertion order.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		at = at.Add(time.Second)
		return at
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Workers = 4
	cfg.StoreTimeout = time.Second
	return cfg
}

func newTestStore(t *testing.T, products ...models.Product) *memory.Store {
	t.Helper()
	st := memory.New(memory.WithClock(steppingClock()))
	if len(products) > 0 {
		if err := st.UpsertProducts(context.Background(), products); err != nil {
			t.Fatalf("seed products: %v", err)
		}
	}
	return st
}

func product(asin, name string, price float64) models.Product {
	return models.Product{
		ASIN:       asin,
		Name:       name,
		URL:        "https://www.amazon.com/dp/" + asin,
		FinalPrice: models.PriceOf(price),
	}
}

// newSearch creates a Done search linked to asins.
func newSearch(t *testing.T, st *memory.Store, userID, query string, tracked bool, asins ...string) *models.Search {
	t.Helper()
	ctx := context.Background()
	search := &models.Search{UserID: userID, Query: query, Status: models.StatusDone, Tracked: tracked}
	if err := st.CreateSearch(ctx, search); err != nil {
		t.Fatalf("create search: %v", err)
	}
	if len(asins) > 0 {
		if _, err := st.LinkProducts(ctx, search.ID, asins); err != nil {
			t.Fatalf("link products: %v", err)
		}
	}
	return search
}

func appendPrices(t *testing.T, st *memory.Store, asin string, prices ...float64) {
	t.Helper()
	for _, price := range prices {
		if _, err := st.AppendSnapshot(context.Background(), asin, price); err != nil {
			t.Fatalf("append snapshot %s: %v", asin, err)
		}
	}
}

// scriptedSource returns a fixed next price per ASIN.
type scriptedSource struct {
	prices map[string]float64
}

func (s scriptedSource) NextPrice(_ context.Context, p models.Product) (float64, error) {
	price, ok := s.prices[p.ASIN]
	if !ok {
		return 0, fmt.Errorf("no scripted price for %s", p.ASIN)
	}
	return price, nil
}

// faultyStore wraps the memory store and fails selected calls.
type faultyStore struct {
	*memory.Store

	failAppend     map[string]bool
	failLatest     map[string]bool
	failListSearch bool
	blockAppend    bool
}

func (f *faultyStore) AppendSnapshot(ctx context.Context, asin string, price float64) (*models.Snapshot, error) {
	if f.blockAppend {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.failAppend[asin] {
		return nil, errInjected
	}
	return f.Store.AppendSnapshot(ctx, asin, price)
}

func (f *faultyStore) LatestTwo(ctx context.Context, asin string) ([]models.Snapshot, error) {
	if f.failLatest[asin] {
		return nil, errInjected
	}
	return f.Store.LatestTwo(ctx, asin)
}

func (f *faultyStore) ListTrackedDone(ctx context.Context) ([]models.Search, error) {
	if f.failListSearch {
		return nil, errInjected
	}
	return f.Store.ListTrackedDone(ctx)
}
