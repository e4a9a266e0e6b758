package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antedotee/mad-project-price-tracker/store"
)

func TestForEachBoundsConcurrency(t *testing.T) {
	var active, peak int32
	seen := make([]bool, 20)

	forEach(context.Background(), len(seen), 3, func(_ context.Context, i int) {
		cur := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		seen[i] = true
		atomic.AddInt32(&active, -1)
	})

	if peak > 3 {
		t.Fatalf("peak concurrency = %d, want <= 3", peak)
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("index %d not visited", i)
		}
	}
}

func TestForEachZeroItems(t *testing.T) {
	called := false
	forEach(context.Background(), 0, 4, func(context.Context, int) { called = true })
	if called {
		t.Fatalf("fn called for empty input")
	}
}

func TestErrorTypeLabel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "timeout", err: classify("op", context.DeadlineExceeded), expected: "timeout"},
		{name: "not found", err: classify("op", store.ErrNotFound), expected: "not_found"},
		{name: "store", err: classify("op", errors.New("boom")), expected: "store"},
		{name: "price source", err: ErrPriceSource{Err: errors.New("no price")}, expected: "price_source"},
		{name: "wrapped timeout", err: fmt.Errorf("outer: %w", classify("op", context.DeadlineExceeded)), expected: "timeout"},
		{name: "other", err: errors.New("plain"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTypeLabel(tt.err); got != tt.expected {
				t.Errorf("ErrorTypeLabel(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}
