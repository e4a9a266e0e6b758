package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/antedotee/mad-project-price-tracker/models"
)

func TestEmitBuildsAlert(t *testing.T) {
	ctx := context.Background()
	p := product("A1", "Apple iPhone 12", 100)
	st := newTestStore(t, p)
	search := newSearch(t, st, "user-1", "iphone", true, "A1")

	n, err := NewEmitter(st, time.Second).Emit(ctx, search, []models.Drop{{Product: p, OldPrice: 100, NewPrice: 89.99}})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if n != 1 {
		t.Fatalf("created = %d, want 1", n)
	}

	alerts, err := st.ListAlerts(ctx, "user-1", true)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.DropAmount != 10.01 || a.DropPercent != 10.01 {
		t.Fatalf("amount = %v, percent = %v; want 10.01, 10.01", a.DropAmount, a.DropPercent)
	}
	if a.ProductName != p.Name || a.ProductURL != p.URL || a.SearchID != search.ID || a.Read {
		t.Fatalf("alert = %+v", a)
	}
}

func TestEmitDedupAndRecovery(t *testing.T) {
	ctx := context.Background()
	p := product("A1", "Apple iPhone 12", 100)
	st := newTestStore(t, p)
	search := newSearch(t, st, "user-1", "iphone", true, "A1")
	emitter := NewEmitter(st, time.Second)
	drops := []models.Drop{{Product: p, OldPrice: 100, NewPrice: 90}}

	for i, want := range []int{1, 0} {
		n, err := emitter.Emit(ctx, search, drops)
		if err != nil {
			t.Fatalf("emit #%d: %v", i, err)
		}
		if n != want {
			t.Fatalf("emit #%d created = %d, want %d", i, n, want)
		}
	}

	unread, _ := st.ListAlerts(ctx, "user-1", true)
	if len(unread) != 1 {
		t.Fatalf("unread = %d, want 1", len(unread))
	}
	if _, err := st.MarkAlertRead(ctx, unread[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	n, err := emitter.Emit(ctx, search, drops)
	if err != nil {
		t.Fatalf("emit after read: %v", err)
	}
	if n != 1 {
		t.Fatalf("created after read = %d, want 1", n)
	}
}

func TestEmitDuplicateDropsInOneBatch(t *testing.T) {
	p := product("A1", "Echo Dot", 50)
	st := newTestStore(t, p)
	search := newSearch(t, st, "u1", "echo", true, "A1")
	drop := models.Drop{Product: p, OldPrice: 50, NewPrice: 40}

	n, err := NewEmitter(st, time.Second).Emit(context.Background(), search, []models.Drop{drop, drop})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if n != 1 {
		t.Fatalf("created = %d, want 1", n)
	}
}

func TestEmitNoDrops(t *testing.T) {
	st := newTestStore(t)
	n, err := NewEmitter(st, time.Second).Emit(context.Background(), &models.Search{ID: "s"}, nil)
	if err != nil || n != 0 {
		t.Fatalf("emit = %d, %v; want 0, nil", n, err)
	}
}
