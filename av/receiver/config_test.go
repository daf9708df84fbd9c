package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.LatePacketThreshold)
	assert.Equal(t, 0.9, cfg.BufferingThresholdScale)
}

func TestLoadConfig(t *testing.T) {
	body := `
initial_delay_ms: 250
late_packet_threshold: 3
jitter_buffer_time: 20ms
`
	cfg, err := LoadConfig(body, true)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.InitialDelayMs)
	assert.Equal(t, 3, cfg.LatePacketThreshold)
	assert.Equal(t, 20*time.Millisecond, cfg.JitterBufferTime)

	// unset keys keep their defaults
	assert.Equal(t, DefaultConfig().JitterBufferPackets, cfg.JitterBufferPackets)
	assert.Equal(t, DefaultConfig().DefaultSampleRateHz, cfg.DefaultSampleRateHz)
}

func TestLoadConfigEmpty(t *testing.T) {
	cfg, err := LoadConfig("  \n", true)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoadConfigUnknownKey(t *testing.T) {
	body := "initial_delay_ms: 100\nnot_a_key: 1\n"

	_, err := LoadConfig(body, true)
	assert.Error(t, err)

	cfg, err := LoadConfig(body, false)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.InitialDelayMs)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"maximum delay", func(c *Config) { c.InitialDelayMs = MaxInitialDelayMs }, true},
		{"negative delay", func(c *Config) { c.InitialDelayMs = -1 }, false},
		{"delay too large", func(c *Config) { c.InitialDelayMs = MaxInitialDelayMs + 1 }, false},
		{"zero threshold", func(c *Config) { c.LatePacketThreshold = 0 }, false},
		{"zero scale", func(c *Config) { c.BufferingThresholdScale = 0 }, false},
		{"full scale", func(c *Config) { c.BufferingThresholdScale = 1 }, true},
		{"scale above one", func(c *Config) { c.BufferingThresholdScale = 1.5 }, false},
		{"no buffer packets", func(c *Config) { c.JitterBufferPackets = 0 }, false},
		{"negative buffer time", func(c *Config) { c.JitterBufferTime = -time.Millisecond }, false},
		{"low sample rate", func(c *Config) { c.DefaultSampleRateHz = 999 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestLoadConfigInvalidValue(t *testing.T) {
	_, err := LoadConfig("initial_delay_ms: 20000\n", true)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadConfig("initial_delay_ms: [1, 2]\n", true)
	assert.Error(t, err)
}
