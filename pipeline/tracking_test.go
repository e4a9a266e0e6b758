package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/antedotee/mad-project-price-tracker/store"
)

func TestSetTracked(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	search := newSearch(t, st, "u1", "q", false)
	tracking := NewTracking(st, time.Second)

	for _, want := range []bool{true, true, false} {
		got, err := tracking.SetTracked(ctx, search.ID, want)
		if err != nil {
			t.Fatalf("set tracked %v: %v", want, err)
		}
		if got.Tracked != want {
			t.Fatalf("tracked = %v, want %v", got.Tracked, want)
		}
	}

	if _, err := tracking.SetTracked(ctx, "missing", true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
