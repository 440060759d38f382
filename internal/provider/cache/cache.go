package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quoteselect/internal/log"
	"quoteselect/internal/metrics"
	"quoteselect/internal/possibility"
	"quoteselect/internal/provider"
)

// entry stores cached quotes for a single symbol with expiry.
type entry struct {
	expiresAt time.Time
	quotes    []provider.Quote
}

// Provider caches results per symbol for a TTL and decides, per request,
// whether to answer from the cache or go live.
type Provider struct {
	P        provider.Provider
	TTL      time.Duration
	MaxItems int
	// Live is the chance that a request ignores cached entries and refreshes
	// every symbol from P. Nil never bypasses.
	Live    *possibility.Possibility
	Metrics *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time

	mu    sync.RWMutex
	items map[string]entry // key: symbol

	// coalesces identical concurrent upstream requests
	sf singleflight.Group
}

func (c *Provider) Name() string { return c.P.Name() }

// Len reports how many symbols are currently stored, expired or not.
func (c *Provider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Fetch returns quotes for the requested symbols in request order.
func (c *Provider) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	if c.TTL <= 0 {
		return c.P.Fetch(ctx, symbols)
	}
	symbols = provider.Dedupe(symbols)
	if len(symbols) == 0 {
		return nil, nil
	}

	now := c.now()
	bypass := c.Live != nil && c.Live.Determine()

	cached := make(map[string][]provider.Quote, len(symbols))
	missing := make([]string, 0, len(symbols))
	c.mu.RLock()
	for _, s := range symbols {
		if e, ok := c.items[s]; ok && now.Before(e.expiresAt) {
			cached[s] = e.quotes
			continue
		}
		missing = append(missing, s)
	}
	c.mu.RUnlock()

	want := missing
	switch {
	case bypass:
		c.record(metrics.CacheBypass)
		want = symbols
	case len(missing) == 0:
		c.record(metrics.CacheHit)
		return merge(symbols, cached, nil), nil
	default:
		c.record(metrics.CacheMiss)
	}

	fresh, err := c.load(ctx, want)
	if err != nil {
		// Partial cached data beats no data.
		if len(cached) > 0 {
			log.Warn(ctx, "cache: live fetch failed, serving cached quotes",
				zap.String("provider", c.P.Name()), zap.Int("cached", len(cached)), zap.Error(err))
			return merge(symbols, cached, nil), nil
		}
		return nil, err
	}

	bySymbol := make(map[string][]provider.Quote, len(want))
	for _, q := range fresh {
		bySymbol[q.Symbol] = append(bySymbol[q.Symbol], q)
	}
	c.store(bySymbol, now)
	return merge(symbols, cached, bySymbol), nil
}

func (c *Provider) load(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	key := strings.Join(symbols, "\x00")
	// The shared fetch outlives any single caller; each caller still
	// returns as soon as its own context is done.
	ch := c.sf.DoChan(key, func() (any, error) {
		return c.P.Fetch(context.WithoutCancel(ctx), symbols)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		qs, _ := r.Val.([]provider.Quote)
		return qs, nil
	}
}

func (c *Provider) store(bySymbol map[string][]provider.Quote, now time.Time) {
	expiry := now.Add(c.TTL)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[string]entry, len(bySymbol))
	}
	for sym, qs := range bySymbol {
		c.items[sym] = entry{expiresAt: expiry, quotes: qs}
	}
	if c.MaxItems <= 0 || len(c.items) <= c.MaxItems {
		return
	}
	// expired entries go first, then arbitrary ones
	for k, v := range c.items {
		if len(c.items) <= c.MaxItems {
			return
		}
		if !now.Before(v.expiresAt) {
			delete(c.items, k)
		}
	}
	for k := range c.items {
		if len(c.items) <= c.MaxItems {
			return
		}
		if _, fresh := bySymbol[k]; fresh {
			continue
		}
		delete(c.items, k)
	}
}

func (c *Provider) record(decision string) {
	if c.Metrics != nil {
		c.Metrics.CacheDecisions.WithLabelValues(decision).Inc()
	}
}

func (c *Provider) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// merge orders quotes by request; fresh quotes replace cached ones.
func merge(symbols []string, cached, fresh map[string][]provider.Quote) []provider.Quote {
	out := make([]provider.Quote, 0, len(symbols))
	for _, s := range symbols {
		if qs, ok := fresh[s]; ok {
			out = append(out, qs...)
			continue
		}
		out = append(out, cached[s]...)
	}
	return out
}
