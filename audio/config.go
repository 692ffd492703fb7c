package audio

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sonigraph/engine/core"
	"github.com/sonigraph/engine/param"
)

// EngineConfig holds engine tunables. Zero values are replaced by
// defaults in normalize, so a partially filled config is valid.
type EngineConfig struct {
	SampleRate      int
	PoolCapacity    int
	Steal           core.StealStrategy
	MaxDetuneCents  float64
	MasterVolume    float64
	SampleTimeout   time.Duration
	AdaptiveQuality bool
}

// DefaultEngineConfig returns the documented defaults
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		SampleRate:      param.AudioSampleRate,
		PoolCapacity:    param.DefaultPoolCapacity,
		Steal:           core.StealOldest,
		MaxDetuneCents:  param.DefaultMaxDetuneCents,
		MasterVolume:    param.DefaultMasterVolume,
		SampleTimeout:   param.SampleFetchTimeout,
		AdaptiveQuality: true,
	}
}

// normalize clamps and defaults invalid fields
func (c *EngineConfig) normalize() {
	if c.SampleRate <= 0 {
		c.SampleRate = param.AudioSampleRate
	}
	if c.PoolCapacity <= 0 {
		c.PoolCapacity = param.DefaultPoolCapacity
	}
	if c.PoolCapacity > param.MaxPoolCapacity {
		c.PoolCapacity = param.MaxPoolCapacity
	}
	if c.MaxDetuneCents <= 0 {
		c.MaxDetuneCents = param.DefaultMaxDetuneCents
	}
	if c.MasterVolume < 0 {
		c.MasterVolume = 0
	}
	if c.MasterVolume > 1 {
		c.MasterVolume = 1
	}
	if c.SampleTimeout <= 0 {
		c.SampleTimeout = param.SampleFetchTimeout
	}
}

// LoadEngineConfig builds a config from defaults overridden by
// SONIGRAPH_* environment variables.
func LoadEngineConfig() *EngineConfig {
	cfg := DefaultEngineConfig()

	if v := os.Getenv("SONIGRAPH_SAMPLE_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SampleRate = n
		}
	}

	if v := os.Getenv("SONIGRAPH_POOL_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PoolCapacity = n
		}
	}

	if v := os.Getenv("SONIGRAPH_STEAL_STRATEGY"); v != "" {
		if s, ok := core.ParseStealStrategy(v); ok {
			cfg.Steal = s
		}
	}

	if v := os.Getenv("SONIGRAPH_MAX_DETUNE_CENTS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.MaxDetuneCents = f
		}
	}

	// Master volume 0-100 converted to 0.0-1.0
	if v := os.Getenv("SONIGRAPH_MASTER_VOLUME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MasterVolume = float64(n) / 100.0
		}
	}

	if v := os.Getenv("SONIGRAPH_ADAPTIVE_QUALITY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AdaptiveQuality = b
		}
	}

	cfg.normalize()
	return cfg
}

// tomlEngineConfig mirrors the on-disk config format
type tomlEngineConfig struct {
	SampleRate      int     `toml:"sample-rate"`
	PoolCapacity    int     `toml:"pool-capacity"`
	Steal           string  `toml:"steal-strategy"`
	MaxDetuneCents  float64 `toml:"max-detune-cents"`
	MasterVolume    float64 `toml:"master-volume"`
	SampleTimeoutMS int     `toml:"sample-timeout-ms"`
	AdaptiveQuality *bool   `toml:"adaptive-quality"`
}

// LoadEngineConfigFile reads a TOML config file over the defaults
func LoadEngineConfigFile(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var raw tomlEngineConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg := DefaultEngineConfig()
	if raw.SampleRate > 0 {
		cfg.SampleRate = raw.SampleRate
	}
	if raw.PoolCapacity > 0 {
		cfg.PoolCapacity = raw.PoolCapacity
	}
	if raw.Steal != "" {
		s, ok := core.ParseStealStrategy(raw.Steal)
		if !ok {
			return nil, fmt.Errorf("config: unknown steal strategy %q", raw.Steal)
		}
		cfg.Steal = s
	}
	if raw.MaxDetuneCents > 0 {
		cfg.MaxDetuneCents = raw.MaxDetuneCents
	}
	if raw.MasterVolume > 0 {
		cfg.MasterVolume = raw.MasterVolume
	}
	if raw.SampleTimeoutMS > 0 {
		cfg.SampleTimeout = time.Duration(raw.SampleTimeoutMS) * time.Millisecond
	}
	if raw.AdaptiveQuality != nil {
		cfg.AdaptiveQuality = *raw.AdaptiveQuality
	}

	cfg.normalize()
	return cfg, nil
}
