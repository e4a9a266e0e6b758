// Package memory is an in-process implementation of store.Store used for
// local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/store"
)

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now as the source of timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store keeps every table in maps guarded by a single mutex.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	products map[string]*models.Product
	order    []string // catalog order of product ASINs

	snapshots  map[string][]models.Snapshot // per ASIN, append order
	snapshotID int64

	searches map[string]*models.Search
	links    map[string][]string // search id -> ASINs in link order
	linked   map[models.SearchProductLink]struct{}

	alerts []*models.Alert
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:       time.Now,
		products:  make(map[string]*models.Product),
		snapshots: make(map[string][]models.Snapshot),
		searches:  make(map[string]*models.Search),
		links:     make(map[string][]string),
		linked:    make(map[models.SearchProductLink]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

// AppendSnapshot implements store.SnapshotStore.
func (s *Store) AppendSnapshot(ctx context.Context, asin string, price float64) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[asin]; !ok {
		return nil, fmt.Errorf("append snapshot %s: %w", asin, store.ErrUnknownReference)
	}
	s.snapshotID++
	snap := models.Snapshot{
		ID:        s.snapshotID,
		ASIN:      asin,
		Price:     price,
		CreatedAt: s.now(),
	}
	s.snapshots[asin] = append(s.snapshots[asin], snap)
	return &snap, nil
}

// LatestTwo implements store.SnapshotStore.
func (s *Store) LatestTwo(ctx context.Context, asin string) ([]models.Snapshot, error) {
	return s.History(ctx, asin, 2)
}

// History implements store.SnapshotStore.
func (s *Store) History(ctx context.Context, asin string, limit int) ([]models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	history := append([]models.Snapshot(nil), s.snapshots[asin]...)
	s.mu.RUnlock()

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Newer(history[j])
	})
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

// UpsertProducts implements store.ProductStore.
func (s *Store) UpsertProducts(ctx context.Context, products []models.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, p := range products {
		if p.ASIN == "" {
			return fmt.Errorf("upsert product: empty asin")
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		if existing, ok := s.products[p.ASIN]; ok {
			p.CreatedAt = existing.CreatedAt
			if p.FinalPrice == nil {
				p.FinalPrice = existing.FinalPrice
			}
			if p.Brand == "" {
				p.Brand = existing.Brand
			}
			if p.Keyword == "" {
				p.Keyword = existing.Keyword
			}
		} else {
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			s.order = append(s.order, p.ASIN)
		}
		p.FinalPrice = copyPrice(p.FinalPrice)
		s.products[p.ASIN] = &p
	}
	return nil
}

// GetProduct implements store.ProductStore.
func (s *Store) GetProduct(ctx context.Context, asin string) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[asin]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneProduct(p), nil
}

// ListProducts implements store.ProductStore.
func (s *Store) ListProducts(ctx context.Context, limit int) ([]models.Product, error) {
	return s.list(ctx, limit, false)
}

// ListPriced implements store.ProductStore. Ties on UpdatedAt keep
// catalog order.
func (s *Store) ListPriced(ctx context.Context, limit int) ([]models.Product, error) {
	return s.list(ctx, limit, true)
}

func (s *Store) list(ctx context.Context, limit int, pricedOnly bool) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Product
	for _, asin := range s.order {
		p := s.products[asin]
		if pricedOnly && !p.HasPrice() {
			continue
		}
		out = append(out, *cloneProduct(p))
	}
	if pricedOnly {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdatePrice implements store.ProductStore.
func (s *Store) UpdatePrice(ctx context.Context, asin string, price float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[asin]
	if !ok {
		return fmt.Errorf("update price %s: %w", asin, store.ErrNotFound)
	}
	p.FinalPrice = models.PriceOf(price)
	p.UpdatedAt = s.now()
	return nil
}

// CreateSearch implements store.SearchStore. Empty ID, status and creation
// time are filled in.
func (s *Store) CreateSearch(ctx context.Context, search *models.Search) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if search.ID == "" {
		search.ID = uuid.NewString()
	}
	if search.Status == "" {
		search.Status = models.StatusPending
	}
	if search.CreatedAt.IsZero() {
		search.CreatedAt = s.now()
	}
	if _, ok := s.searches[search.ID]; ok {
		return fmt.Errorf("create search %s: duplicate id", search.ID)
	}
	cp := *search
	s.searches[search.ID] = &cp
	return nil
}

// GetSearch implements store.SearchStore.
func (s *Store) GetSearch(ctx context.Context, id string) (*models.Search, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	search, ok := s.searches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *search
	return &cp, nil
}

// SetTracked implements store.SearchStore.
func (s *Store) SetTracked(ctx context.Context, id string, tracked bool) (*models.Search, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	search, ok := s.searches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	search.Tracked = tracked
	cp := *search
	return &cp, nil
}

// UpdateStatus implements store.SearchStore.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.SearchStatus, scrapedAt *time.Time, jobID *string) (*models.Search, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	search, ok := s.searches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	search.Status = status
	if scrapedAt != nil {
		at := *scrapedAt
		search.LastScrapedAt = &at
	}
	if jobID != nil {
		job := *jobID
		search.ScrapeJobID = &job
	}
	cp := *search
	return &cp, nil
}

// ListTrackedDone implements store.SearchStore.
func (s *Store) ListTrackedDone(ctx context.Context) ([]models.Search, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Search
	for _, search := range s.searches {
		if search.Tracked && search.Status == models.StatusDone {
			out = append(out, *search)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// LinkProducts implements store.LinkStore.
func (s *Store) LinkProducts(ctx context.Context, searchID string, asins []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.searches[searchID]; !ok {
		return 0, fmt.Errorf("link products to %s: %w", searchID, store.ErrUnknownReference)
	}
	for _, asin := range asins {
		if _, ok := s.products[asin]; !ok {
			return 0, fmt.Errorf("link product %s: %w", asin, store.ErrUnknownReference)
		}
	}

	inserted := 0
	for _, asin := range asins {
		key := models.SearchProductLink{SearchID: searchID, ASIN: asin}
		if _, ok := s.linked[key]; ok {
			continue
		}
		s.linked[key] = struct{}{}
		s.links[searchID] = append(s.links[searchID], asin)
		inserted++
	}
	return inserted, nil
}

// LinkedProducts implements store.LinkStore.
func (s *Store) LinkedProducts(ctx context.Context, searchID string) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	asins := s.links[searchID]
	out := make([]models.Product, 0, len(asins))
	for _, asin := range asins {
		out = append(out, *cloneProduct(s.products[asin]))
	}
	return out, nil
}

// UnreadASINs implements store.AlertStore.
func (s *Store) UnreadASINs(ctx context.Context, searchID string) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	unread := make(map[string]struct{})
	for _, a := range s.alerts {
		if a.SearchID == searchID && !a.Read {
			unread[a.ASIN] = struct{}{}
		}
	}
	return unread, nil
}

// InsertAlerts implements store.AlertStore. The batch is validated as a
// whole before anything is written.
func (s *Store) InsertAlerts(ctx context.Context, alerts []models.Alert) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range alerts {
		if a.OldPrice <= a.NewPrice {
			return 0, fmt.Errorf("insert alert %s/%s: %w", a.SearchID, a.ASIN, store.ErrInvalidAlert)
		}
		if _, ok := s.searches[a.SearchID]; !ok {
			return 0, fmt.Errorf("insert alert %s/%s: %w", a.SearchID, a.ASIN, store.ErrUnknownReference)
		}
		if _, ok := s.products[a.ASIN]; !ok {
			return 0, fmt.Errorf("insert alert %s/%s: %w", a.SearchID, a.ASIN, store.ErrUnknownReference)
		}
	}

	unread := make(map[models.SearchProductLink]struct{})
	for _, a := range s.alerts {
		if !a.Read {
			unread[models.SearchProductLink{SearchID: a.SearchID, ASIN: a.ASIN}] = struct{}{}
		}
	}

	inserted := 0
	now := s.now()
	for _, a := range alerts {
		key := models.SearchProductLink{SearchID: a.SearchID, ASIN: a.ASIN}
		if _, ok := unread[key]; ok {
			continue
		}
		unread[key] = struct{}{}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.Read = false
		s.alerts = append(s.alerts, &a)
		inserted++
	}
	return inserted, nil
}

// ListAlerts implements store.AlertStore.
func (s *Store) ListAlerts(ctx context.Context, userID string, unreadOnly bool) ([]models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Alert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if a.UserID != userID || (unreadOnly && a.Read) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

// MarkAlertRead implements store.AlertStore.
func (s *Store) MarkAlertRead(ctx context.Context, id string) (*models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.ID == id {
			a.Read = true
			cp := *a
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func cloneProduct(p *models.Product) *models.Product {
	cp := *p
	cp.FinalPrice = copyPrice(p.FinalPrice)
	return &cp
}

func copyPrice(price *float64) *float64 {
	if price == nil {
		return nil
	}
	return models.PriceOf(*price)
}
