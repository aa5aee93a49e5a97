package driver

import (
	"math/rand"
	"sync"
)

// Source yields uniform random values in a numeric range. The simulation
// draws from it for connection rejection, sensor noise, and spontaneous
// link loss. Tests inject a deterministic implementation.
type Source interface {
	// Float64InRange returns a uniform value in [min, max).
	Float64InRange(min, max float64) float64
}

// NewSource returns a Source backed by math/rand with the given seed.
// It is safe for concurrent use.
func NewSource(seed int64) Source {
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}
}

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *lockedSource) Float64InRange(min, max float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.rng.Float64()*(max-min)
}
