package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v6"
)

type Selection struct {
	// Weights maps backend name -> share of requests routed to it.
	// Unassigned mass fans a request out to every backend.
	Weights        map[string]float64 `json:"weights" env:"WEIGHTS"`
	Seed           uint64             `json:"seed" env:"SEED"` // 0 means unseeded
	Failover       bool               `json:"failover" env:"FAILOVER"`
	MaxConcurrency int                `json:"max_concurrency" env:"MAX_CONCURRENCY"`
}

type Cache struct {
	TTLSeconds int `json:"ttl_sec" env:"TTL_SEC"`
	MaxItems   int `json:"max_items" env:"MAX_ITEMS"`
	// LiveProbability is the chance a request skips the cache and refreshes from the backend.
	LiveProbability float64 `json:"live_probability" env:"LIVE_PROBABILITY"`
}

// RateLimit throttles individual backends before the selector sees them.
type RateLimit struct {
	// RequestsPerMinute maps backend name -> allowed requests per minute. Absent or 0 means unlimited.
	RequestsPerMinute map[string]float64 `json:"requests_per_minute" env:"RPM"`
	Burst             int                `json:"burst" env:"BURST"`
}

type Log struct {
	Level string `json:"level" env:"LEVEL"`
}

type Config struct {
	Selection Selection `json:"selection" envPrefix:"SELECTION_"`
	Cache     Cache     `json:"cache" envPrefix:"CACHE_"`
	RateLimit RateLimit `json:"rate_limit" envPrefix:"RATELIMIT_"`
	Log       Log       `json:"log" envPrefix:"LOG_"`
}

func Default() Config {
	return Config{
		Selection: Selection{
			Weights:        map[string]float64{},
			MaxConcurrency: 4,
		},
		Cache: Cache{
			TTLSeconds:      15,
			MaxItems:        50000,
			LiveProbability: 0.05,
		},
		RateLimit: RateLimit{
			RequestsPerMinute: map[string]float64{},
			Burst:             1,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads JSON config from path. If path is empty, config.json in the
// working directory is used when present; a missing file yields defaults.
// Environment variables override file values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := env.ParseWithFuncs(&cfg, parsers); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parsers covers field types env has no built-in parser for.
var parsers = map[reflect.Type]env.ParserFunc{
	reflect.TypeOf(map[string]float64{}): func(v string) (interface{}, error) {
		return ParseWeights(v)
	},
}

// ParseWeights parses "name:value,name:value" into a map. Blank items are skipped.
func ParseWeights(s string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, raw, ok := strings.Cut(item, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("weights: %q is not name:value", item)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("weights: duplicate name %q", name)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("weights: value of %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// Validate checks ranges the selector and cache cannot repair themselves.
// Weight sums are checked when the option set is built.
func (c Config) Validate() error {
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("config: cache.ttl_sec must be >= 0, got %d", c.Cache.TTLSeconds)
	}
	if c.Cache.MaxItems < 0 {
		return fmt.Errorf("config: cache.max_items must be >= 0, got %d", c.Cache.MaxItems)
	}
	if p := c.Cache.LiveProbability; math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("config: cache.live_probability must be within [0,1], got %v", p)
	}
	if c.Selection.MaxConcurrency < 0 {
		return fmt.Errorf("config: selection.max_concurrency must be >= 0, got %d", c.Selection.MaxConcurrency)
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate_limit.burst must be >= 0, got %d", c.RateLimit.Burst)
	}
	for name, rpm := range c.RateLimit.RequestsPerMinute {
		if math.IsNaN(rpm) || rpm < 0 {
			return fmt.Errorf("config: rate_limit.requests_per_minute[%s] must be >= 0, got %v", name, rpm)
		}
	}
	return nil
}
