package slotpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/slotpool/internal/logging"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 250*time.Millisecond, cfg.DebounceInterval)
	require.Equal(t, 5, cfg.CongestionRetryLimit)
	require.Equal(t, 2*time.Second, cfg.HandoffSettleDelay)
	require.Equal(t, 10*time.Second, cfg.OperationTimeout)
	require.Equal(t, 30*time.Second, cfg.StartupTimeout)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Zero(t, cfg.SlotCount, "slot count has no default")
}

func TestSetDefaults(t *testing.T) {
	cfg := Config{SlotCount: 8, DebounceInterval: time.Second}
	SetDefaults(&cfg)

	require.Equal(t, 8, cfg.SlotCount)
	require.Equal(t, time.Second, cfg.DebounceInterval, "explicit values are preserved")
	require.Equal(t, 5, cfg.CongestionRetryLimit)
	require.Equal(t, 2*time.Second, cfg.HandoffSettleDelay)
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.SlotCount = 16
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero slot count", func(c *Config) { c.SlotCount = 0 }},
		{"negative slot count", func(c *Config) { c.SlotCount = -4 }},
		{"zero debounce", func(c *Config) { c.DebounceInterval = 0 }},
		{"negative retry limit", func(c *Config) { c.CongestionRetryLimit = -1 }},
		{"negative settle delay", func(c *Config) { c.HandoffSettleDelay = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfigValidateWithWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlotCount = 16
	cfg.DebounceInterval = 10 * time.Millisecond
	cfg.HandoffSettleDelay = 5 * time.Millisecond

	// Warnings must not turn into errors.
	require.NoError(t, cfg.ValidateWithWarnings(logging.NewNop()))
}

func TestConfigYAML(t *testing.T) {
	input := `
slotCount: 32
debounceInterval: 500ms
congestionRetryLimit: 3
handoffSettleDelay: 1s
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(input), &cfg))
	require.Equal(t, 32, cfg.SlotCount)
	require.Equal(t, 500*time.Millisecond, cfg.DebounceInterval)
	require.Equal(t, 3, cfg.CongestionRetryLimit)
	require.Equal(t, time.Second, cfg.HandoffSettleDelay)

	SetDefaults(&cfg)
	require.NoError(t, cfg.Validate())
}
