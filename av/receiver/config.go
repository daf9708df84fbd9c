package receiver

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxInitialDelayMs is the largest accepted initial playout delay.
const MaxInitialDelayMs = 10000

// Config holds receiver settings.
type Config struct {
	// Initial playout delay applied at construction, 0 disables it.
	InitialDelayMs int `yaml:"initial_delay_ms,omitempty"`

	// Number of overdue packets before sync packets are synthesized.
	LatePacketThreshold int `yaml:"late_packet_threshold,omitempty"`

	// Buffer fill ratio at which buffering stops regardless of the delay
	// accumulated so far.
	BufferingThresholdScale float64 `yaml:"buffering_threshold_scale,omitempty"`

	// Jitter buffer size in packets and minimum spacing between releases.
	JitterBufferPackets int           `yaml:"jitter_buffer_packets,omitempty"`
	JitterBufferTime    time.Duration `yaml:"jitter_buffer_time,omitempty"`

	// Output rate used before any audio packet arrived.
	DefaultSampleRateHz int `yaml:"default_sample_rate_hz,omitempty"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		InitialDelayMs:          0,
		LatePacketThreshold:     5,
		BufferingThresholdScale: 0.9,
		JitterBufferPackets:     240,
		JitterBufferTime:        0,
		DefaultSampleRateHz:     16000,
	}
}

// LoadConfig decodes a YAML body on top of DefaultConfig. In strict mode
// unknown keys are rejected.
func LoadConfig(body string, strict bool) (*Config, error) {
	conf := DefaultConfig()

	if strings.TrimSpace(body) != "" {
		decoder := yaml.NewDecoder(strings.NewReader(body))
		decoder.KnownFields(strict)
		if err := decoder.Decode(&conf); err != nil {
			return nil, fmt.Errorf("could not parse config: %w", err)
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks every field for its accepted range.
func (c Config) Validate() error {
	if c.InitialDelayMs < 0 || c.InitialDelayMs > MaxInitialDelayMs {
		return fmt.Errorf("%w: initial_delay_ms %d outside [0, %d]", ErrInvalidConfig, c.InitialDelayMs, MaxInitialDelayMs)
	}
	if c.LatePacketThreshold < 1 {
		return fmt.Errorf("%w: late_packet_threshold must be at least 1", ErrInvalidConfig)
	}
	if c.BufferingThresholdScale <= 0 || c.BufferingThresholdScale > 1 {
		return fmt.Errorf("%w: buffering_threshold_scale must be in (0, 1]", ErrInvalidConfig)
	}
	if c.JitterBufferPackets < 1 {
		return fmt.Errorf("%w: jitter_buffer_packets must be positive", ErrInvalidConfig)
	}
	if c.JitterBufferTime < 0 {
		return fmt.Errorf("%w: jitter_buffer_time cannot be negative", ErrInvalidConfig)
	}
	if c.DefaultSampleRateHz < 1000 {
		return fmt.Errorf("%w: default_sample_rate_hz must be at least 1000", ErrInvalidConfig)
	}
	return nil
}
