// Package possibility picks named outcomes at random according to
// caller-assigned probabilities.
//
// An OptionSet holds explicit options whose weights sum to at most 1. Any
// unassigned mass belongs to a synthetic default option that has no name and
// is reachable only through Determine. A Possibility is the single-weight
// case, sampled to a boolean.
package possibility

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"sort"
	"strings"
)

// Tolerance is the slack allowed when checking that explicit weights sum to at most 1.
// A leftover smaller than Tolerance does not produce a default option.
const Tolerance = 1e-9

// NamedOption is one weighted outcome of an OptionSet.
type NamedOption struct {
	name      string
	weight    float64
	isDefault bool
}

// Name is empty for the default option.
func (o NamedOption) Name() string { return o.name }

func (o NamedOption) Weight() float64 { return o.weight }

// IsDefault reports whether o is the synthetic leftover option.
func (o NamedOption) IsDefault() bool { return o.isDefault }

func (o NamedOption) String() string {
	if o.isDefault {
		return fmt.Sprintf("<default>(%g)", o.weight)
	}
	return fmt.Sprintf("%s(%g)", o.name, o.weight)
}

// Entry is a caller-supplied (name, weight) pair.
type Entry struct {
	Name   string
	Weight float64
}

// OptionSet is an immutable set of mutually exclusive weighted outcomes.
// Determine may be called concurrently when the configured Source allows it;
// the default and seeded sources both do.
type OptionSet struct {
	options []NamedOption  // ascending by (weight, name)
	index   map[string]int // name -> position in options
	def     NamedOption
	hasDef  bool
	// edges[i] is the exclusive upper bound of bucket i. Buckets follow
	// options, with the default bucket (if any) last.
	edges []float64
	src   Source
}

// FromMap builds an OptionSet from an unordered name -> weight mapping.
func FromMap(weights map[string]float64, opts ...Option) (*OptionSet, error) {
	entries := make([]Entry, 0, len(weights))
	for name, w := range weights {
		entries = append(entries, Entry{Name: name, Weight: w})
	}
	return New(entries, opts...)
}

// New builds an OptionSet from entries. It fails with ErrInvalidArgument when
// a name is blank or repeated, a weight lies outside [0,1], or the weights sum
// to more than 1.
func New(entries []Entry, opts ...Option) (*OptionSet, error) {
	st := newSettings(opts)

	options := make([]NamedOption, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	var sum float64
	for _, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("%w: option name must not be blank", ErrInvalidArgument)
		}
		if math.IsNaN(e.Weight) || e.Weight < 0 || e.Weight > 1 {
			return nil, fmt.Errorf("%w: weight %v of option %q is outside [0,1]", ErrInvalidArgument, e.Weight, e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate option %q", ErrInvalidArgument, e.Name)
		}
		seen[e.Name] = struct{}{}
		sum += e.Weight
		options = append(options, NamedOption{name: e.Name, weight: e.Weight})
	}
	if sum > 1+Tolerance {
		return nil, fmt.Errorf("%w: option weights sum to %v, more than 1", ErrInvalidArgument, sum)
	}

	sort.Slice(options, func(i, j int) bool {
		if options[i].weight != options[j].weight {
			return options[i].weight < options[j].weight
		}
		return options[i].name < options[j].name
	})

	s := &OptionSet{
		options: options,
		index:   make(map[string]int, len(options)),
		edges:   make([]float64, 0, len(options)+1),
		src:     st.src,
	}
	var cum float64
	for i, o := range options {
		s.index[o.name] = i
		cum += o.weight
		s.edges = append(s.edges, cum)
	}
	if rest := 1 - cum; rest > Tolerance {
		s.def = NamedOption{weight: rest, isDefault: true}
		s.hasDef = true
		s.edges = append(s.edges, 1)
	}
	return s, nil
}

// Len returns the number of explicit options.
func (s *OptionSet) Len() int { return len(s.options) }

// Options returns the explicit options ascending by weight, ties broken by name.
// The default option is never included.
func (s *OptionSet) Options() []NamedOption { return slices.Clone(s.options) }

// All yields the explicit options in the same order as Options.
func (s *OptionSet) All() iter.Seq[NamedOption] {
	return func(yield func(NamedOption) bool) {
		for _, o := range s.options {
			if !yield(o) {
				return
			}
		}
	}
}

// Get looks up an explicit option by exact name.
func (s *OptionSet) Get(name string) (NamedOption, error) {
	if strings.TrimSpace(name) == "" {
		return NamedOption{}, fmt.Errorf("%w: option name must not be blank", ErrInvalidArgument)
	}
	i, ok := s.index[name]
	if !ok {
		return NamedOption{}, fmt.Errorf("%w: option %q", ErrNotFound, name)
	}
	return s.options[i], nil
}

// Default returns the leftover option, if the explicit weights leave any mass.
func (s *OptionSet) Default() (NamedOption, bool) { return s.def, s.hasDef }

// Remainder is the probability mass held by the default option, 0 when there is none.
func (s *OptionSet) Remainder() float64 { return s.def.weight }

// Determine draws one outcome, possibly the default option.
func (s *OptionSet) Determine() NamedOption {
	return s.Resolve(s.src.Float64())
}

// Resolve maps a draw u in [0,1) to the option whose bucket contains it.
// Values past the last edge, from rounding or a misbehaving source, resolve to
// the last bucket; values below 0 resolve as 0.
func (s *OptionSet) Resolve(u float64) NamedOption {
	if u < 0 || math.IsNaN(u) {
		u = 0
	}
	i := sort.Search(len(s.edges), func(i int) bool { return s.edges[i] > u })
	if i == len(s.edges) {
		i--
	}
	if i == len(s.options) {
		return s.def
	}
	return s.options[i]
}
