package fusion

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable of the estimation core. Fields absent from
// the YAML file keep their compiled defaults, so a deployment only writes
// the values it changes.
type Config struct {
	TickMs         int     `yaml:"tick_ms"`
	ReadingAgeMs   int64   `yaml:"reading_age_ms"`
	ProcessNoise   float64 `yaml:"process_noise"`
	AnchorAccuracy float64 `yaml:"anchor_accuracy"`

	Ble  RadioConfig `yaml:"ble"`
	Wifi RadioConfig `yaml:"wifi"`

	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Steps       StepConfig        `yaml:"steps"`
	Recovery    RecoveryConfig    `yaml:"recovery"`
}

// RadioConfig calibrates one radio channel's path-loss model.
type RadioConfig struct {
	RefRSSI  float64 `yaml:"ref_rssi"`
	Exponent float64 `yaml:"exponent"`
	MaxRange float64 `yaml:"max_range"`
	Accuracy float64 `yaml:"accuracy"`
}

type FingerprintConfig struct {
	K          int     `yaml:"k"`
	BleWeight  float64 `yaml:"ble_weight"`
	WifiWeight float64 `yaml:"wifi_weight"`
	Accuracy   float64 `yaml:"accuracy"`
}

type StepConfig struct {
	Length        float64 `yaml:"length"`
	Threshold     float64 `yaml:"threshold"`
	MinIntervalMs int64   `yaml:"min_interval_ms"`
	Accuracy      float64 `yaml:"accuracy"`
	DriftPerStep  float64 `yaml:"drift_per_step"`
}

type RecoveryConfig struct {
	FailureThreshold int     `yaml:"failure_threshold"`
	MaxAttempts      int     `yaml:"max_attempts"`
	BackoffSeconds   []int   `yaml:"backoff_seconds"`
	MinConfidence    float64 `yaml:"min_confidence"`
	Landmarks        int     `yaml:"landmarks"`
}

func DefaultConfig() *Config {
	return &Config{
		TickMs:         DefaultTickMs,
		ReadingAgeMs:   DefaultReadingAgeMs,
		ProcessNoise:   DefaultProcessNoise,
		AnchorAccuracy: DefaultAnchorAccuracy,
		Ble: RadioConfig{
			RefRSSI:  DefaultBleRefRSSI,
			Exponent: DefaultBleExponent,
			MaxRange: DefaultMaxRange,
			Accuracy: DefaultBleAccuracy,
		},
		Wifi: RadioConfig{
			RefRSSI:  DefaultWifiRefRSSI,
			Exponent: DefaultWifiExponent,
			MaxRange: DefaultMaxRange,
			Accuracy: DefaultWifiAccuracy,
		},
		Fingerprint: FingerprintConfig{
			K:          DefaultFingerprintK,
			BleWeight:  DefaultBleWeight,
			WifiWeight: DefaultWifiWeight,
			Accuracy:   DefaultFingerprintAccuracy,
		},
		Steps: StepConfig{
			Length:        DefaultStepLength,
			Threshold:     DefaultStepThreshold,
			MinIntervalMs: DefaultStepIntervalMs,
			Accuracy:      DefaultDeadReckonAccuracy,
			DriftPerStep:  DefaultDriftPerStep,
		},
		Recovery: RecoveryConfig{
			FailureThreshold: DefaultFailureThreshold,
			MaxAttempts:      DefaultRecoveryAttempts,
			BackoffSeconds:   append([]int(nil), DefaultRecoveryBackoff...),
			MinConfidence:    DefaultMinConfidence,
			Landmarks:        DefaultRecoveryLandmarks,
		},
	}
}

// LoadConfig overlays a YAML tuning file on the defaults. An empty path
// returns pure defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tuning config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse tuning config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tuning config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.TickMs < 100 {
		return fmt.Errorf("tick_ms %d below 100", c.TickMs)
	}
	if c.ProcessNoise <= 0 {
		return fmt.Errorf("process_noise must be positive")
	}
	if c.Fingerprint.K < 1 {
		return fmt.Errorf("fingerprint.k must be at least 1")
	}
	if c.Fingerprint.BleWeight < 0 || c.Fingerprint.WifiWeight < 0 ||
		c.Fingerprint.BleWeight+c.Fingerprint.WifiWeight <= 0 {
		return fmt.Errorf("fingerprint channel weights must be non-negative and sum above zero")
	}
	if c.Steps.Length <= 0 || c.Steps.MinIntervalMs < 0 {
		return fmt.Errorf("bad step config: length %.2f interval %dms", c.Steps.Length, c.Steps.MinIntervalMs)
	}
	if c.Recovery.MinConfidence < 0 || c.Recovery.MinConfidence > 1 {
		return fmt.Errorf("recovery.min_confidence %.2f outside [0,1]", c.Recovery.MinConfidence)
	}
	if c.Recovery.MaxAttempts < 1 || len(c.Recovery.BackoffSeconds) == 0 {
		return fmt.Errorf("recovery needs at least one attempt and one backoff delay")
	}
	for _, s := range c.Recovery.BackoffSeconds {
		if s <= 0 {
			return fmt.Errorf("recovery backoff delays must be positive, got %d", s)
		}
	}
	return nil
}

// Tick returns the pipeline period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// Backoff returns the delay before retry attempt i (0-based); past the end
// of the schedule the last delay repeats.
func (c *RecoveryConfig) Backoff(i int) time.Duration {
	if i >= len(c.BackoffSeconds) {
		i = len(c.BackoffSeconds) - 1
	}
	return time.Duration(c.BackoffSeconds[i]) * time.Second
}
