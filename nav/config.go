package nav

import (
	"fmt"
	"time"
)

const (
	DefaultFloorPenalty     = 25.0
	DefaultOffPathThreshold = 5.0
	DefaultRerouteCooldownS = 15
	DefaultPollMs           = 1000
	DefaultWalkSpeed        = 1.4
	DefaultStairsFactor     = 0.5
	DefaultEscalatorFactor  = 1.25
	DefaultElevatorWaitS    = 30.0
	DefaultCacheSize        = 64

	// Polls faster than this add nothing; positions only change per
	// pipeline tick.
	MinPollMs = 1000
)

// Config carries the navigation tunables. Zero-valued fields keep defaults,
// matching the fusion config conventions.
type Config struct {
	FloorPenalty     float64 `yaml:"floor_penalty"`
	OffPathThreshold float64 `yaml:"off_path_threshold"`
	RerouteCooldownS int     `yaml:"reroute_cooldown_s"`
	PollMs           int     `yaml:"poll_ms"`
	WalkSpeed        float64 `yaml:"walk_speed"`
	StairsFactor     float64 `yaml:"stairs_factor"`
	EscalatorFactor  float64 `yaml:"escalator_factor"`
	ElevatorWaitS    float64 `yaml:"elevator_wait_s"`
	CacheSize        int     `yaml:"cache_size"`
}

func DefaultConfig() *Config {
	return &Config{
		FloorPenalty:     DefaultFloorPenalty,
		OffPathThreshold: DefaultOffPathThreshold,
		RerouteCooldownS: DefaultRerouteCooldownS,
		PollMs:           DefaultPollMs,
		WalkSpeed:        DefaultWalkSpeed,
		StairsFactor:     DefaultStairsFactor,
		EscalatorFactor:  DefaultEscalatorFactor,
		ElevatorWaitS:    DefaultElevatorWaitS,
		CacheSize:        DefaultCacheSize,
	}
}

func (c *Config) Validate() error {
	if c.PollMs < MinPollMs {
		return fmt.Errorf("poll_ms %d below minimum %d", c.PollMs, MinPollMs)
	}
	if c.OffPathThreshold <= 0 {
		return fmt.Errorf("off_path_threshold must be positive")
	}
	if c.WalkSpeed <= 0 {
		return fmt.Errorf("walk_speed must be positive")
	}
	if c.StairsFactor <= 0 || c.EscalatorFactor <= 0 {
		return fmt.Errorf("transition speed factors must be positive")
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache_size must be at least 1")
	}
	return nil
}

func (c *Config) Poll() time.Duration {
	return time.Duration(c.PollMs) * time.Millisecond
}

func (c *Config) RerouteCooldown() time.Duration {
	return time.Duration(c.RerouteCooldownS) * time.Second
}
