package provider

import (
	"context"
	"time"
)

// Quote is the normalized shape returned by all backends.
// Price stays a string so no backend's rounding leaks into the others.
type Quote struct {
	Symbol     string    `json:"symbol"`
	Price      string    `json:"price"`
	Currency   string    `json:"currency"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

// Provider is a quote backend, or a wrapper that decides which backend to ask.
//
//go:generate mockgen -package=providermock -destination=providermock/mock_provider.go -source=provider.go Provider
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) ([]Quote, error)
}

// Dedupe returns symbols without repeats, keeping first-seen order and
// dropping empty entries.
func Dedupe(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
