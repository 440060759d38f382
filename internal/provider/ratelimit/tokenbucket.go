package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quoteselect/internal/provider"
)

// TokenBucket refills at rate tokens per second up to capacity (the burst).
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewTokenBucket starts full so the first burst goes through immediately.
func NewTokenBucket(tokensPerSecond float64, burst int) (*TokenBucket, error) {
	if tokensPerSecond <= 0 {
		return nil, fmt.Errorf("ratelimit: rate must be > 0, got %v", tokensPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		tokens:   float64(burst),
		last:     time.Now(),
	}, nil
}

// PerMinute is NewTokenBucket with the rate given in requests per minute.
func PerMinute(rpm float64, burst int) (*TokenBucket, error) {
	return NewTokenBucket(rpm/60, burst)
}

// reserve takes a token if one is available, otherwise reports how long
// until one will be.
func (tb *TokenBucket) reserve(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if elapsed := now.Sub(tb.last).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.rate)
		tb.last = now
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return 0
	}
	wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
	return max(wait, time.Millisecond)
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		wait := tb.reserve(time.Now())
		if wait == 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Provider gates calls to P through a token bucket.
type Provider struct {
	P  provider.Provider
	TB *TokenBucket
}

func (p *Provider) Name() string { return p.P.Name() }

func (p *Provider) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	if p.TB != nil {
		if err := p.TB.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return p.P.Fetch(ctx, symbols)
}
