package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/antedotee/mad-project-price-tracker/config"
	"github.com/antedotee/mad-project-price-tracker/lookup"
	"github.com/antedotee/mad-project-price-tracker/metrics"
	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/parser"
	"github.com/antedotee/mad-project-price-tracker/pipeline"
	"github.com/antedotee/mad-project-price-tracker/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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

// scriptedSource returns a fixed next price per ASIN. A negative price
// scripts a transient failure.
type scriptedSource map[string]float64

func (s scriptedSource) NextPrice(_ context.Context, p models.Product) (float64, error) {
	price, ok := s[p.ASIN]
	if !ok {
		return 0, fmt.Errorf("no scripted price for %s", p.ASIN)
	}
	if price < 0 {
		return 0, transientErr(p.ASIN)
	}
	return price, nil
}

type transientErr string

func (e transientErr) Error() string   { return "source busy for " + string(e) }
func (e transientErr) Retryable() bool { return true }

type fakeTrigger struct {
	jobID string
	err   error
	calls []string
}

func (f *fakeTrigger) Trigger(_ context.Context, searchID, keyword string) (string, error) {
	f.calls = append(f.calls, searchID+"|"+keyword)
	return f.jobID, f.err
}

type testEnv struct {
	router *gin.Engine
	store  *memory.Store
}

func newTestEnv(t *testing.T, source scriptedSource, trigger ScrapeTrigger, staticRecords ...parser.RawRecord) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workers = 2
	cfg.StoreTimeout = time.Second

	st := memory.New(memory.WithClock(steppingClock()))
	m := metrics.New()
	cached, err := lookup.NewCached(lookup.NewFallback(
		lookup.PrimaryStoreLookup{Store: st},
		lookup.NewStaticCatalog(staticRecords),
	), 16)
	if err != nil {
		t.Fatalf("cached lookup: %v", err)
	}

	checker := pipeline.NewChecker(st, cfg.Workers, cfg.StoreTimeout, m)
	updater := pipeline.NewUpdater(cfg, st, source, checker, m)
	updater.SetInvalidator(cached)
	ingestor := pipeline.NewIngestor(st, cfg.StoreTimeout, m)
	ingestor.SetInvalidator(cached)

	svc := Services{
		Store:    st,
		Lookup:   cached,
		Checker:  checker,
		Updater:  updater,
		Ingestor: ingestor,
		Linker:   pipeline.NewLinker(cached, st, cfg.LinkLimit, cfg.StoreTimeout, m),
		Tracking: pipeline.NewTracking(st, cfg.StoreTimeout),
		Scrape:   trigger,
		Metrics:  m,
	}
	return &testEnv{router: NewRouter(svc, Options{StoreTimeout: time.Second}), store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return out
}

func (e *testEnv) seed(t *testing.T, products ...models.Product) {
	t.Helper()
	ctx := context.Background()
	if err := e.store.UpsertProducts(ctx, products); err != nil {
		t.Fatalf("seed products: %v", err)
	}
	for _, p := range products {
		if p.HasPrice() {
			if _, err := e.store.AppendSnapshot(ctx, p.ASIN, *p.FinalPrice); err != nil {
				t.Fatalf("seed snapshot: %v", err)
			}
		}
	}
}

func (e *testEnv) search(t *testing.T, userID string, tracked bool, asins ...string) *models.Search {
	t.Helper()
	ctx := context.Background()
	s := &models.Search{UserID: userID, Query: "test", Status: models.StatusDone, Tracked: tracked}
	if err := e.store.CreateSearch(ctx, s); err != nil {
		t.Fatalf("create search: %v", err)
	}
	if _, err := e.store.LinkProducts(ctx, s.ID, asins); err != nil {
		t.Fatalf("link: %v", err)
	}
	return s
}

func priced(asin, name string, price float64) models.Product {
	return models.Product{ASIN: asin, Name: name, FinalPrice: models.PriceOf(price)}
}

func TestPriceDropsHook(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.seed(t, priced("B001", "Kettle", 100))
	if _, err := env.store.AppendSnapshot(context.Background(), "B001", 89.99); err != nil {
		t.Fatalf("append: %v", err)
	}
	tracked := env.search(t, "user-1", true, "B001")
	untracked := env.search(t, "user-1", false, "B001")

	tests := []struct {
		name       string
		body       any
		wantStatus int
		want       map[string]any
	}{
		{name: "missing id", body: map[string]any{"record": map[string]any{"status": "Done"}}, wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: "{", wantStatus: http.StatusBadRequest},
		{name: "not done", body: map[string]any{"record": map[string]any{"id": tracked.ID, "status": "Scraping"}}, wantStatus: http.StatusOK, want: map[string]any{}},
		{name: "unknown search", body: map[string]any{"record": map[string]any{"id": "missing", "status": "Done"}}, wantStatus: http.StatusNotFound},
		{
			name:       "tracked drop",
			body:       map[string]any{"record": map[string]any{"id": tracked.ID, "status": "Done"}},
			wantStatus: http.StatusOK,
			want:       map[string]any{"message": "Price check completed", "priceDropsCount": 1.0, "alertsCreated": 1.0},
		},
		{
			name:       "repeat is deduplicated",
			body:       map[string]any{"record": map[string]any{"id": tracked.ID, "status": "Done"}},
			wantStatus: http.StatusOK,
			want:       map[string]any{"message": "Price check completed", "priceDropsCount": 1.0, "alertsCreated": 0.0},
		},
		{
			name:       "untracked skipped",
			body:       map[string]any{"record": map[string]any{"id": untracked.ID, "status": "Done"}},
			wantStatus: http.StatusOK,
			want: map[string]any{
				"message": "Search is not tracked", "priceDropsCount": 0.0, "alertsCreated": 0.0,
				"skipped": true, "reason": pipeline.SkipNotTracked,
			},
		},
	}

	// Cases share a store and run in order.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/hooks/price-drops", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", status, tt.wantStatus, body)
			}
			if tt.want == nil {
				return
			}
			got := decode[map[string]any](t, body)
			if len(got) != len(tt.want) {
				t.Fatalf("body = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Fatalf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestScrapeCompleteHook(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	search := &models.Search{UserID: "user-1", Query: "kettle", Status: models.StatusScraping}
	if err := env.store.CreateSearch(context.Background(), search); err != nil {
		t.Fatalf("create search: %v", err)
	}

	if status, _ := env.do(t, http.MethodPost, "/hooks/scrape-complete", "[]"); status != http.StatusBadRequest {
		t.Fatalf("missing id status = %d, want 400", status)
	}
	if status, _ := env.do(t, http.MethodPost, "/hooks/scrape-complete?id=missing", "[]"); status != http.StatusNotFound {
		t.Fatalf("unknown search status = %d, want 404", status)
	}

	payload := `[
		{"asin": "B010", "name": "Steel Kettle", "final_price": 49.99, "currency": "usd"},
		{"asin": "B011", "name": "Glass Kettle", "final_price": "$1,299.00"},
		{"asin": "B012", "name": "Travel Kettle", "final_price": null},
		{"asin": "", "name": "No ASIN"},
		{"asin": "B013", "name": ""}
	]`
	status, body := env.do(t, http.MethodPost, "/hooks/scrape-complete?id="+search.ID, payload)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	got := decode[map[string]any](t, body)
	if got["products_saved"] != 3.0 || got["snapshots_created"] != 2.0 || got["search_id"] != search.ID {
		t.Fatalf("body = %v", got)
	}
	if got["message"] != "Scrape completed successfully" {
		t.Fatalf("message = %v", got["message"])
	}

	stored, err := env.store.GetSearch(context.Background(), search.ID)
	if err != nil {
		t.Fatalf("get search: %v", err)
	}
	if stored.Status != models.StatusDone || stored.LastScrapedAt == nil {
		t.Fatalf("search = %+v, want Done with last_scraped_at", stored)
	}

	status, body = env.do(t, http.MethodGet, "/searches/"+search.ID+"/products", nil)
	if status != http.StatusOK {
		t.Fatalf("products status = %d", status)
	}
	if products := decode[[]models.Product](t, body); len(products) != 3 {
		t.Fatalf("linked products = %d, want 3", len(products))
	}
}

func TestScrapeCompleteEmptyBatchCompletesSearch(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	search := &models.Search{UserID: "user-1", Query: "kettle", Status: models.StatusScraping}
	if err := env.store.CreateSearch(context.Background(), search); err != nil {
		t.Fatalf("create search: %v", err)
	}

	status, body := env.do(t, http.MethodPost, "/hooks/scrape-complete?id="+search.ID, `[{"asin": "B1"}]`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	got := decode[map[string]any](t, body)
	if got["products_saved"] != 0.0 || !strings.HasPrefix(got["message"].(string), "No valid products") {
		t.Fatalf("body = %v", got)
	}
	stored, _ := env.store.GetSearch(context.Background(), search.ID)
	if stored.Status != models.StatusDone {
		t.Fatalf("status = %s, want Done", stored.Status)
	}
}

func TestSimulatePricesAndAlertLifecycle(t *testing.T) {
	env := newTestEnv(t, scriptedSource{"B001": 89.99, "B002": 25}, nil)
	env.seed(t, priced("B001", "Kettle", 100), priced("B002", "Toaster", 20))
	search := env.search(t, "user-7", true, "B001", "B002")

	status, body := env.do(t, http.MethodPost, "/jobs/simulate-prices", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	got := decode[map[string]any](t, body)
	if got["productsProcessed"] != 2.0 || got["snapshotsCreated"] != 2.0 || got["trackedSearchesChecked"] != 1.0 {
		t.Fatalf("body = %v", got)
	}
	if errs, ok := got["errors"].([]any); !ok || len(errs) != 0 {
		t.Fatalf("errors = %v, want empty list", got["errors"])
	}

	status, body = env.do(t, http.MethodGet, "/users/user-7/alerts?unread=true", nil)
	if status != http.StatusOK {
		t.Fatalf("alerts status = %d", status)
	}
	alerts := decode[[]models.Alert](t, body)
	if len(alerts) != 1 {
		t.Fatalf("alerts = %+v, want one", alerts)
	}
	a := alerts[0]
	if a.ASIN != "B001" || a.SearchID != search.ID || a.OldPrice != 100 || a.NewPrice != 89.99 || a.DropAmount != 10.01 {
		t.Fatalf("alert = %+v", a)
	}

	if status, _ := env.do(t, http.MethodGet, "/users/user-7/alerts?unread=maybe", nil); status != http.StatusBadRequest {
		t.Fatalf("bad unread flag status = %d, want 400", status)
	}

	status, body = env.do(t, http.MethodPut, "/alerts/"+a.ID+"/read", nil)
	if status != http.StatusOK || !decode[models.Alert](t, body).Read {
		t.Fatalf("mark read status = %d body %s", status, body)
	}
	if status, _ := env.do(t, http.MethodPut, "/alerts/missing/read", nil); status != http.StatusNotFound {
		t.Fatalf("unknown alert status = %d, want 404", status)
	}

	_, body = env.do(t, http.MethodGet, "/users/user-7/alerts?unread=true", nil)
	if unread := decode[[]models.Alert](t, body); len(unread) != 0 {
		t.Fatalf("unread alerts = %d, want 0", len(unread))
	}
	_, body = env.do(t, http.MethodGet, "/users/user-7/alerts", nil)
	if all := decode[[]models.Alert](t, body); len(all) != 1 {
		t.Fatalf("all alerts = %d, want 1", len(all))
	}
}

func TestSimulatePricesReportsProductErrors(t *testing.T) {
	env := newTestEnv(t, scriptedSource{"B001": 101, "B003": -1}, nil)
	env.seed(t, priced("B001", "Kettle", 100), priced("B002", "Toaster", 20), priced("B003", "Blender", 60))

	status, body := env.do(t, http.MethodPost, "/jobs/simulate-prices", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	var got struct {
		ProductsProcessed int                `json:"productsProcessed"`
		Errors            []productErrorBody `json:"errors"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ProductsProcessed != 1 || len(got.Errors) != 2 {
		t.Fatalf("body = %+v", got)
	}
	want := map[string]bool{"B002": false, "B003": true}
	for _, e := range got.Errors {
		retryable, ok := want[e.ASIN]
		if !ok || e.Retryable != retryable {
			t.Fatalf("error %+v, want retryable=%v", e, retryable)
		}
	}
}

func TestCreateSearch(t *testing.T) {
	catalog := []models.Product{
		priced("B001", "Apple iPhone 12 Case", 12),
		priced("B002", "Steel Kettle", 40),
	}

	tests := []struct {
		name        string
		trigger     *fakeTrigger
		body        any
		wantStatus  int
		wantSearch  models.SearchStatus
		wantMatched float64
	}{
		{name: "missing query", body: map[string]string{"user_id": "u1"}, wantStatus: http.StatusBadRequest},
		{name: "missing user", body: map[string]string{"query": "kettle"}, wantStatus: http.StatusBadRequest},
		{
			name:        "completes from catalog",
			body:        map[string]string{"user_id": "u1", "query": "iphone"},
			wantStatus:  http.StatusCreated,
			wantSearch:  models.StatusDone,
			wantMatched: 1,
		},
		{
			name:        "triggers scrape",
			trigger:     &fakeTrigger{jobID: "s_job1"},
			body:        map[string]string{"user_id": "u1", "query": "kettle"},
			wantStatus:  http.StatusCreated,
			wantSearch:  models.StatusScraping,
			wantMatched: 1,
		},
		{
			name:        "trigger failure",
			trigger:     &fakeTrigger{err: errors.New("vendor down")},
			body:        map[string]string{"user_id": "u1", "query": "kettle"},
			wantStatus:  http.StatusBadGateway,
			wantSearch:  models.StatusFailed,
			wantMatched: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var trigger ScrapeTrigger
			if tt.trigger != nil {
				trigger = tt.trigger
			}
			env := newTestEnv(t, nil, trigger)
			env.seed(t, catalog...)

			status, body := env.do(t, http.MethodPost, "/searches", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", status, tt.wantStatus, body)
			}
			if tt.wantSearch == "" {
				return
			}
			var got struct {
				Search  models.Search `json:"search"`
				Matched float64       `json:"matched"`
			}
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Search.Status != tt.wantSearch || got.Matched != tt.wantMatched {
				t.Fatalf("search = %+v matched = %v", got.Search, got.Matched)
			}
			if tt.wantSearch == models.StatusScraping {
				if got.Search.ScrapeJobID == nil || *got.Search.ScrapeJobID != "s_job1" {
					t.Fatalf("job id = %v, want s_job1", got.Search.ScrapeJobID)
				}
				if len(tt.trigger.calls) != 1 || tt.trigger.calls[0] != got.Search.ID+"|kettle" {
					t.Fatalf("trigger calls = %v", tt.trigger.calls)
				}
			}
			if tt.wantSearch == models.StatusDone && got.Search.LastScrapedAt == nil {
				t.Fatal("completed search should carry last_scraped_at")
			}

			status, body = env.do(t, http.MethodGet, "/searches/"+got.Search.ID, nil)
			if status != http.StatusOK || decode[models.Search](t, body).Status != tt.wantSearch {
				t.Fatalf("get search status = %d body %s", status, body)
			}
		})
	}
}

func TestSetTracked(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	search := env.search(t, "u1", false)

	tests := []struct {
		name       string
		id         string
		body       any
		wantStatus int
		wantValue  bool
	}{
		{name: "enable", id: search.ID, body: map[string]bool{"tracked": true}, wantStatus: http.StatusOK, wantValue: true},
		{name: "disable", id: search.ID, body: map[string]bool{"tracked": false}, wantStatus: http.StatusOK, wantValue: false},
		{name: "missing flag", id: search.ID, body: map[string]string{}, wantStatus: http.StatusBadRequest},
		{name: "unknown search", id: "missing", body: map[string]bool{"tracked": true}, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPut, "/searches/"+tt.id+"/tracked", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", status, tt.wantStatus, body)
			}
			if status == http.StatusOK && decode[models.Search](t, body).Tracked != tt.wantValue {
				t.Fatalf("tracked = %v, want %v", !tt.wantValue, tt.wantValue)
			}
		})
	}
}

func TestProductLookupAndHistory(t *testing.T) {
	static := []parser.RawRecord{{ASIN: "S001", Name: "Catalog Only Lamp"}}
	env := newTestEnv(t, nil, nil, static...)
	env.seed(t, priced("B001", "Kettle", 100))
	for _, price := range []float64{95, 90} {
		if _, err := env.store.AppendSnapshot(context.Background(), "B001", price); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		check      func(t *testing.T, body []byte)
	}{
		{
			name:       "stored product",
			path:       "/products/B001",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				if p := decode[models.Product](t, body); p.Name != "Kettle" {
					t.Fatalf("product = %+v", p)
				}
			},
		},
		{
			name:       "static catalog fallback",
			path:       "/products/S001",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				if p := decode[models.Product](t, body); p.Name != "Catalog Only Lamp" {
					t.Fatalf("product = %+v", p)
				}
			},
		},
		{name: "unknown product", path: "/products/NOPE", wantStatus: http.StatusNotFound},
		{
			name:       "history newest first",
			path:       "/products/B001/history?limit=2",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				history := decode[[]models.Snapshot](t, body)
				if len(history) != 2 || history[0].Price != 90 || history[1].Price != 95 {
					t.Fatalf("history = %+v", history)
				}
			},
		},
		{name: "history bad limit", path: "/products/B001/history?limit=-1", wantStatus: http.StatusBadRequest},
		{name: "history unknown product", path: "/products/NOPE/history", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodGet, tt.path, nil)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", status, tt.wantStatus, body)
			}
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	status, body := env.do(t, http.MethodGet, "/healthz", nil)
	if status != http.StatusOK || decode[map[string]string](t, body)["status"] != "ok" {
		t.Fatalf("health status = %d body %s", status, body)
	}

	status, body = env.do(t, http.MethodGet, "/metrics", nil)
	if status != http.StatusOK {
		t.Fatalf("metrics status = %d", status)
	}
	if !strings.Contains(string(body), `tracker_http_requests_total{route="/healthz",status="2xx"} 1`) {
		t.Fatalf("metrics output missing healthz request counter:\n%s", body)
	}
}
