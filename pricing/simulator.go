package pricing

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/antedotee/mad-project-price-tracker/models"
)

// Source produces the next price observation for a product.
type Source interface {
	NextPrice(ctx context.Context, p models.Product) (float64, error)
}

// Simulator is a bounded random walk: each call moves the current price by
// a uniformly drawn change in [-MaxChange, +MaxChange].
type Simulator struct {
	maxChange float64

	mu  sync.Mutex // guards rnd; rand.Rand is not safe for concurrent use
	rnd *rand.Rand
}

// NewSimulator builds a simulator. A nil rnd seeds one from the clock.
func NewSimulator(maxChange float64, rnd *rand.Rand) *Simulator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{maxChange: maxChange, rnd: rnd}
}

// NextPrice implements Source.
func (s *Simulator) NextPrice(_ context.Context, p models.Product) (float64, error) {
	if !p.HasPrice() {
		return 0, fmt.Errorf("product %s has no current price", p.ASIN)
	}
	return ApplyChange(*p.FinalPrice, s.change()), nil
}

// change draws from the closed interval [-maxChange, +maxChange].
func (s *Simulator) change() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Int63n over n+1 steps includes both ends of the interval.
	const steps = 1 << 30
	u := float64(s.rnd.Int63n(steps+1)) / steps
	return (u*2 - 1) * s.maxChange
}
