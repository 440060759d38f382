package possibility_test

import (
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"quoteselect/internal/possibility"
)

// fixedSource always yields the same draw.
type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func names(opts []possibility.NamedOption) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.Name())
	}
	return out
}

func TestFromMap_OrdersAscendingByWeight(t *testing.T) {
	t.Parallel()

	// Arrange + Act
	set, err := possibility.FromMap(map[string]float64{"a": 0.5, "b": 0.3})
	require.NoError(t, err)

	// Assert: b(0.3) comes before a(0.5) and the leftover 0.2 is the default.
	opts := set.Options()
	require.Equal(t, []string{"b", "a"}, names(opts))
	require.InDelta(t, 0.3, opts[0].Weight(), 1e-12)
	require.InDelta(t, 0.5, opts[1].Weight(), 1e-12)

	def, ok := set.Default()
	require.True(t, ok)
	require.True(t, def.IsDefault())
	require.Empty(t, def.Name())
	require.InDelta(t, 0.2, def.Weight(), 1e-9)
	require.InDelta(t, 0.2, set.Remainder(), 1e-9)
}

func TestResolve_BucketsFollowOptionOrder(t *testing.T) {
	t.Parallel()

	set, err := possibility.FromMap(map[string]float64{"a": 0.5, "b": 0.3})
	require.NoError(t, err)

	// b=[0,0.3), a=[0.3,0.8), default=[0.8,1.0)
	cases := []struct {
		u         float64
		name      string
		isDefault bool
	}{
		{u: 0, name: "b"},
		{u: 0.29, name: "b"},
		{u: 0.3, name: "a"},
		{u: 0.79, name: "a"},
		{u: 0.81, isDefault: true},
		{u: 0.999999, isDefault: true},
	}
	for _, tc := range cases {
		got := set.Resolve(tc.u)
		require.Equalf(t, tc.isDefault, got.IsDefault(), "u=%v got %v", tc.u, got)
		require.Equalf(t, tc.name, got.Name(), "u=%v", tc.u)
	}
}

func TestDetermine_UsesConfiguredSource(t *testing.T) {
	t.Parallel()

	// Arrange: a source that always draws 0.81
	set, err := possibility.FromMap(map[string]float64{"a": 0.5, "b": 0.3}, possibility.WithSource(fixedSource(0.81)))
	require.NoError(t, err)

	// Act
	got := set.Determine()

	// Assert: 0.81 lands in the default bucket
	require.True(t, got.IsDefault())
	require.InDelta(t, 0.2, got.Weight(), 1e-9)
}

func TestDetermine_SingleFullOptionAlwaysWins(t *testing.T) {
	t.Parallel()

	set, err := possibility.FromMap(map[string]float64{"x": 1.0})
	require.NoError(t, err)

	_, ok := set.Default()
	require.False(t, ok)
	require.Zero(t, set.Remainder())

	for _, u := range []float64{0, 0.25, 0.5, 0.75, 0.9999999999} {
		require.Equal(t, "x", set.Resolve(u).Name())
	}
	// Out-of-range draws still resolve to a real option.
	require.Equal(t, "x", set.Resolve(1).Name())
	require.Equal(t, "x", set.Resolve(-0.5).Name())
	for i := 0; i < 1000; i++ {
		require.Equal(t, "x", set.Determine().Name())
	}
}

func TestNew_WeightsSummingToOneHaveNoDefault(t *testing.T) {
	t.Parallel()

	set, err := possibility.New([]possibility.Entry{
		{Name: "steam", Weight: 0.1},
		{Name: "buff", Weight: 0.2},
		{Name: "csmoney", Weight: 0.7},
	})
	require.NoError(t, err)

	_, ok := set.Default()
	require.False(t, ok)
	require.Equal(t, []string{"steam", "buff", "csmoney"}, names(set.Options()))
	require.Equal(t, "csmoney", set.Resolve(0.9999999999999999).Name())
}

func TestNew_EmptyIsAllDefault(t *testing.T) {
	t.Parallel()

	set, err := possibility.FromMap(nil)
	require.NoError(t, err)

	require.Zero(t, set.Len())
	require.Empty(t, set.Options())
	def, ok := set.Default()
	require.True(t, ok)
	require.InDelta(t, 1.0, def.Weight(), 1e-12)

	for _, u := range []float64{0, 0.5, 0.99} {
		require.True(t, set.Resolve(u).IsDefault())
	}
}

func TestNew_EqualWeightsOrderByName(t *testing.T) {
	t.Parallel()

	set, err := possibility.FromMap(map[string]float64{"b": 0.25, "a": 0.25, "C": 0.25, "z": 0.1})
	require.NoError(t, err)

	// Ordinal comparison: upper case sorts before lower case.
	require.Equal(t, []string{"z", "C", "a", "b"}, names(set.Options()))
}

func TestNew_ZeroWeightOptionIsNeverDrawn(t *testing.T) {
	t.Parallel()

	set, err := possibility.FromMap(map[string]float64{"never": 0, "always": 1})
	require.NoError(t, err)

	require.Equal(t, []string{"never", "always"}, names(set.Options()))
	require.Equal(t, "always", set.Resolve(0).Name())
	require.Equal(t, "always", set.Resolve(0.5).Name())
}

func TestNew_InvalidInput(t *testing.T) {
	t.Parallel()

	cases := map[string][]possibility.Entry{
		"sum exceeds one":  {{Name: "a", Weight: 0.6}, {Name: "b", Weight: 0.6}},
		"empty name":       {{Name: "", Weight: 0.5}},
		"blank name":       {{Name: "   ", Weight: 0.5}},
		"negative weight":  {{Name: "a", Weight: -0.1}},
		"weight above one": {{Name: "a", Weight: 1.5}},
		"duplicate name":   {{Name: "a", Weight: 0.2}, {Name: "a", Weight: 0.3}},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			set, err := possibility.New(entries)
			require.ErrorIs(t, err, possibility.ErrInvalidArgument)
			require.Nil(t, set)
		})
	}
}

func TestFromMap_InvalidInput(t *testing.T) {
	t.Parallel()

	_, err := possibility.FromMap(map[string]float64{"a": 0.6, "b": 0.6})
	require.ErrorIs(t, err, possibility.ErrInvalidArgument)

	_, err = possibility.FromMap(map[string]float64{"": 0.5})
	require.ErrorIs(t, err, possibility.ErrInvalidArgument)
}

func TestNew_SumWithinToleranceIsAccepted(t *testing.T) {
	t.Parallel()

	// 0.1+0.2+0.3+0.4 drifts slightly from 1 in binary floating point.
	set, err := possibility.FromMap(map[string]float64{"a": 0.1, "b": 0.2, "c": 0.3, "d": 0.4})
	require.NoError(t, err)
	_, ok := set.Default()
	require.False(t, ok)
}

func TestGet(t *testing.T) {
	t.Parallel()

	set, err := possibility.FromMap(map[string]float64{"a": 0.5, "b": 0.3})
	require.NoError(t, err)

	got, err := set.Get("a")
	require.NoError(t, err)
	require.Equal(t, "a", got.Name())
	require.InDelta(t, 0.5, got.Weight(), 1e-12)
	require.False(t, got.IsDefault())

	_, err = set.Get("missing")
	require.ErrorIs(t, err, possibility.ErrNotFound)

	// Lookups are case-sensitive.
	_, err = set.Get("A")
	require.ErrorIs(t, err, possibility.ErrNotFound)

	_, err = set.Get("")
	require.ErrorIs(t, err, possibility.ErrInvalidArgument)
	_, err = set.Get(" \t")
	require.ErrorIs(t, err, possibility.ErrInvalidArgument)
}

func TestOptions_IdempotentAndMatchesAll(t *testing.T) {
	t.Parallel()

	set, err := possibility.FromMap(map[string]float64{"a": 0.5, "b": 0.3, "c": 0.1})
	require.NoError(t, err)

	first := set.Options()
	second := set.Options()
	require.Equal(t, first, second)

	// Mutating the returned slice must not leak into the set.
	first[0] = possibility.NamedOption{}
	require.Equal(t, second, set.Options())

	// All restarts from the beginning on every call.
	require.Equal(t, second, slices.Collect(set.All()))
	require.Equal(t, second, slices.Collect(set.All()))

	// Early break stops the sequence.
	var seen int
	for range set.All() {
		seen++
		break
	}
	require.Equal(t, 1, seen)
}

func TestOptions_SortInvariantAndMass(t *testing.T) {
	t.Parallel()

	inputs := []map[string]float64{
		{},
		{"x": 1},
		{"a": 0.5, "b": 0.3},
		{"p": 0.05, "q": 0.05, "r": 0.3, "s": 0.2, "t": 0.15},
		{"one": 0.125, "two": 0.125, "three": 0.125, "four": 0.125, "five": 0.5},
	}
	for _, in := range inputs {
		set, err := possibility.FromMap(in)
		require.NoError(t, err)

		opts := set.Options()
		var mass float64
		for i, o := range opts {
			mass += o.Weight()
			if i == 0 {
				continue
			}
			prev := opts[i-1]
			ordered := prev.Weight() < o.Weight() || (prev.Weight() == o.Weight() && prev.Name() <= o.Name())
			require.Truef(t, ordered, "%v before %v", prev, o)
		}
		require.InDelta(t, 1.0, mass+set.Remainder(), possibility.Tolerance)
	}
}

func TestDetermine_FrequenciesMatchWeights(t *testing.T) {
	t.Parallel()

	// Arrange: a seeded source keeps the run reproducible.
	weights := map[string]float64{"steamdt": 0.4, "pricempire": 0.25, "skinstable": 0.15}
	set, err := possibility.FromMap(weights, possibility.WithSource(possibility.NewSeededSource(42)))
	require.NoError(t, err)

	// Act
	const n = 100_000
	counts := make(map[string]int, len(weights))
	var defaults int
	for i := 0; i < n; i++ {
		o := set.Determine()
		if o.IsDefault() {
			defaults++
			continue
		}
		counts[o.Name()]++
	}

	// Assert
	for name, w := range weights {
		require.InDeltaf(t, w, float64(counts[name])/n, 0.01, "option %s", name)
	}
	require.InDelta(t, set.Remainder(), float64(defaults)/n, 0.01)
}

func TestDetermine_SeededSourceIsReproducible(t *testing.T) {
	t.Parallel()

	weights := map[string]float64{"a": 0.2, "b": 0.3, "c": 0.4}
	s1, err := possibility.FromMap(weights, possibility.WithSource(possibility.NewSeededSource(7)))
	require.NoError(t, err)
	s2, err := possibility.FromMap(weights, possibility.WithSource(possibility.NewSeededSource(7)))
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		require.Equal(t, s1.Determine(), s2.Determine())
	}
}

func TestDetermine_ConcurrentUse(t *testing.T) {
	t.Parallel()

	shared := possibility.NewSeededSource(1)
	set, err := possibility.FromMap(map[string]float64{"a": 0.5, "b": 0.5}, possibility.WithSource(shared))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]int, 8)
	for g := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if o := set.Determine(); !o.IsDefault() {
					results[g]++
				}
			}
		}()
	}
	wg.Wait()

	for _, r := range results {
		require.Equal(t, 1000, r)
	}
}
