// Package selector routes each quote request to one backend, picked at random
// according to configured weights.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quoteselect/internal/log"
	"quoteselect/internal/metrics"
	"quoteselect/internal/possibility"
	"quoteselect/internal/provider"
)

type Config struct {
	Name string // display name, default: Selector
	// Weights maps backend name -> probability of routing a request there.
	// Whatever mass is left over sends the request to every backend at once.
	Weights map[string]float64
	// Failover tries the other weighted backends, in option order, when the
	// chosen one fails.
	Failover bool
	// MaxConcurrency caps parallel backend calls during a fan-out. <= 0 means no cap.
	MaxConcurrency int
}

// Provider is a provider.Provider that delegates each Fetch to a weighted
// random backend.
type Provider struct {
	cfg      Config
	set      *possibility.OptionSet
	backends map[string]provider.Provider
	order    []string // backend names, sorted, for fan-out merging
	metrics  *metrics.Metrics
	src      possibility.Source
}

// Option configures a selector Provider.
type Option func(*Provider)

// WithSource sets the random source used to pick backends.
func WithSource(src possibility.Source) Option {
	return func(p *Provider) { p.src = src }
}

// WithMetrics records selections and backend failures in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) {
		if m != nil {
			p.metrics = m
		}
	}
}

// New validates the weights and binds every weighted name to a backend.
func New(cfg Config, backends map[string]provider.Provider, opts ...Option) (*Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "Selector"
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: no backends registered", possibility.ErrInvalidArgument)
	}
	order := make([]string, 0, len(backends))
	for name, b := range backends {
		if b == nil {
			return nil, fmt.Errorf("%w: backend %q is nil", possibility.ErrInvalidArgument, name)
		}
		order = append(order, name)
	}
	sort.Strings(order)

	p := &Provider{
		cfg:      cfg,
		backends: backends,
		order:    order,
		metrics:  metrics.Unregistered(),
	}
	for _, opt := range opts {
		opt(p)
	}

	set, err := possibility.FromMap(cfg.Weights, possibility.WithSource(p.src))
	if err != nil {
		return nil, fmt.Errorf("selector weights: %w", err)
	}
	for o := range set.All() {
		if _, ok := backends[o.Name()]; !ok {
			return nil, fmt.Errorf("%w: weighted backend %q is not registered", possibility.ErrNotFound, o.Name())
		}
	}
	p.set = set
	return p, nil
}

func (p *Provider) Name() string { return p.cfg.Name }

// Options lists the weighted backends in bucket order.
func (p *Provider) Options() []possibility.NamedOption { return p.set.Options() }

// FanOutWeight is the probability that a request goes to every backend.
func (p *Provider) FanOutWeight() float64 { return p.set.Remainder() }

// Fetch picks a backend for this request and returns its quotes.
func (p *Provider) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	symbols = provider.Dedupe(symbols)
	if len(symbols) == 0 {
		return nil, nil
	}

	choice := p.set.Determine()
	if choice.IsDefault() {
		p.metrics.Selections.WithLabelValues(metrics.FanOut).Inc()
		log.Debug(ctx, "selector: fan-out", zap.Float64("weight", choice.Weight()), zap.Int("backends", len(p.order)))
		return p.fanOut(ctx, symbols)
	}

	name := choice.Name()
	p.metrics.Selections.WithLabelValues(name).Inc()
	log.Debug(ctx, "selector: picked backend", zap.String("backend", name), zap.Float64("weight", choice.Weight()))

	qs, err := p.fetchOne(ctx, name, symbols)
	if err == nil || !p.cfg.Failover {
		return qs, err
	}
	return p.failover(ctx, name, symbols, err)
}

func (p *Provider) fetchOne(ctx context.Context, name string, symbols []string) ([]provider.Quote, error) {
	qs, err := p.backends[name].Fetch(ctx, symbols)
	if err != nil {
		p.metrics.BackendErrors.WithLabelValues(name).Inc()
		log.Warn(ctx, "selector: backend failed", zap.String("backend", name), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return qs, nil
}

func (p *Provider) failover(ctx context.Context, failed string, symbols []string, first error) ([]provider.Quote, error) {
	errs := []error{first}
	for o := range p.set.All() {
		if o.Name() == failed {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		qs, err := p.fetchOne(ctx, o.Name(), symbols)
		if err == nil {
			log.Info(ctx, "selector: failed over", zap.String("from", failed), zap.String("to", o.Name()))
			return qs, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// fanOut queries every backend concurrently and keeps partial results.
// Quotes are merged in backend-name order.
func (p *Provider) fanOut(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	type result struct {
		quotes []provider.Quote
		err    error
	}
	results := make([]result, len(p.order))

	var g errgroup.Group
	if p.cfg.MaxConcurrency > 0 {
		g.SetLimit(p.cfg.MaxConcurrency)
	}
	for i, name := range p.order {
		g.Go(func() error {
			qs, err := p.fetchOne(ctx, name, symbols)
			results[i] = result{quotes: qs, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var all []provider.Quote
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		all = append(all, r.quotes...)
	}
	if len(all) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return all, nil
}
