package possibility

import (
	"math/rand/v2"
	"sync"
)

// Source yields uniform samples in [0,1).
type Source interface {
	Float64() float64
}

type globalSource struct{}

// Float64 uses the runtime-seeded global generator, which is safe for concurrent use.
func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource returns the process-wide random source.
func DefaultSource() Source { return globalSource{} }

// seededSource is a reproducible generator guarded by a mutex so one seeded
// source can back concurrent callers.
type seededSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeededSource returns a deterministic source for tests and simulations.
func NewSeededSource(seed uint64) Source {
	return &seededSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// Option configures an OptionSet or a Possibility.
type Option func(*settings)

type settings struct {
	src Source
}

// WithSource selects the random source used by Determine. A nil source keeps the default.
func WithSource(src Source) Option {
	return func(s *settings) {
		if src != nil {
			s.src = src
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{src: DefaultSource()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
