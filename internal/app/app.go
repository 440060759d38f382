// Package app wires configuration, backends, the weighted selector and the
// cache into one provider.Provider.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"quoteselect/internal/config"
	"quoteselect/internal/log"
	"quoteselect/internal/metrics"
	"quoteselect/internal/possibility"
	"quoteselect/internal/provider"
	"quoteselect/internal/provider/cache"
	"quoteselect/internal/provider/ratelimit"
	"quoteselect/internal/provider/selector"
)

type App struct {
	cfg      config.Config
	provider provider.Provider
	selector *selector.Provider
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New builds the provider chain: cache (when cache.ttl_sec > 0) in front of
// the weighted selector in front of the given backends. reg may be nil.
func New(cfg config.Config, backends map[string]provider.Provider, reg prometheus.Registerer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := log.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	var src possibility.Source = possibility.DefaultSource()
	if cfg.Selection.Seed != 0 {
		src = possibility.NewSeededSource(cfg.Selection.Seed)
	}

	limited, err := throttle(cfg.RateLimit, backends)
	if err != nil {
		return nil, err
	}

	sel, err := selector.New(selector.Config{
		Weights:        cfg.Selection.Weights,
		Failover:       cfg.Selection.Failover,
		MaxConcurrency: cfg.Selection.MaxConcurrency,
	}, limited, selector.WithSource(src), selector.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	var p provider.Provider = sel
	if cfg.Cache.TTLSeconds > 0 {
		live, err := possibility.NewPossibility(cfg.Cache.LiveProbability, possibility.WithSource(src))
		if err != nil {
			return nil, fmt.Errorf("cache live probability: %w", err)
		}
		p = &cache.Provider{
			P:        p,
			TTL:      time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			MaxItems: cfg.Cache.MaxItems,
			Live:     live,
			Metrics:  m,
		}
	}

	ctx := log.Into(context.Background(), logger)
	for _, o := range sel.Options() {
		log.Info(ctx, "backend weight", zap.String("backend", o.Name()), zap.Float64("weight", o.Weight()))
	}
	log.Info(ctx, "fan-out weight", zap.Float64("weight", sel.FanOutWeight()), zap.Int("backends", len(backends)))

	return &App{cfg: cfg, provider: p, selector: sel, metrics: m, logger: logger}, nil
}

// throttle wraps each backend that has a requests-per-minute limit.
func throttle(cfg config.RateLimit, backends map[string]provider.Provider) (map[string]provider.Provider, error) {
	out := make(map[string]provider.Provider, len(backends))
	for name, b := range backends {
		out[name] = b
	}
	for name, rpm := range cfg.RequestsPerMinute {
		b, ok := backends[name]
		if !ok {
			return nil, fmt.Errorf("%w: rate limit for unregistered backend %q", possibility.ErrNotFound, name)
		}
		if rpm <= 0 || b == nil {
			continue
		}
		tb, err := ratelimit.PerMinute(rpm, cfg.Burst)
		if err != nil {
			return nil, err
		}
		out[name] = &ratelimit.Provider{P: b, TB: tb}
	}
	return out, nil
}

// Provider returns the composed provider.
func (a *App) Provider() provider.Provider { return a.provider }

// Selector exposes the weighted selector for introspection.
func (a *App) Selector() *selector.Provider { return a.selector }

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Fetch runs a request through the chain with the app logger in context.
func (a *App) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	ctx = log.Into(ctx, a.logger)
	return a.provider.Fetch(ctx, symbols)
}

// Close flushes buffered log entries.
func (a *App) Close() error {
	_ = a.logger.Sync()
	return nil
}
