package possibility

import (
	"fmt"
	"math"
)

// positive names the "true" branch of a Possibility's internal option set.
const positive = "true"

// Possibility is a weighted coin: Determine returns true with probability Weight.
type Possibility struct {
	set *OptionSet
}

// NewPossibility fails with ErrInvalidArgument when weight is outside [0,1].
func NewPossibility(weight float64, opts ...Option) (*Possibility, error) {
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return nil, fmt.Errorf("%w: probability %v is outside [0,1]", ErrInvalidArgument, weight)
	}
	set, err := New([]Entry{{Name: positive, Weight: weight}}, opts...)
	if err != nil {
		return nil, err
	}
	return &Possibility{set: set}, nil
}

func (p *Possibility) Weight() float64 { return p.set.options[0].weight }

// Determine runs one independent trial.
func (p *Possibility) Determine() bool { return !p.set.Determine().IsDefault() }

// Resolve reports the outcome for a given draw u, i.e. u < Weight().
func (p *Possibility) Resolve(u float64) bool { return !p.set.Resolve(u).IsDefault() }
