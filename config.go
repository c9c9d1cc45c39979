package slotpool

import (
	"fmt"
	"time"

	"github.com/arloliu/slotpool/types"
)

// Config is the configuration for a Session.
//
// All duration fields accept standard Go duration strings like "250ms",
// "5s", "1m" when unmarshalled from YAML.
type Config struct {
	// SlotCount is the fixed pool size N. Slots are numbered [0, N) and
	// are never created or destroyed during a session. Required.
	SlotCount int `yaml:"slotCount"`

	// DebounceInterval is the minimum time between snapshot publishes.
	// Mutations arriving within one interval are coalesced into a single
	// publish carrying the fully converged table.
	// Recommended: 100ms-1s depending on join/leave churn.
	DebounceInterval time.Duration `yaml:"debounceInterval"`

	// CongestionRetryLimit is the number of times a publish is deferred
	// while the transport reports congestion. Beyond the limit the
	// publish is forced through regardless, so a congested transport
	// degrades publish latency but never starves replication.
	CongestionRetryLimit int `yaml:"congestionRetryLimit"`

	// HandoffSettleDelay is the grace period between this replica
	// becoming coordinator and the verification sweep, allowing in-flight
	// join/leave traffic from the previous coordinator to settle.
	// Recommended: 1-5 seconds.
	HandoffSettleDelay time.Duration `yaml:"handoffSettleDelay"`

	// OperationTimeout bounds individual collaborator calls (snapshot
	// publish, roster enumeration).
	// Recommended: 10 seconds.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// StartupTimeout is the maximum time to wait for the session to fully
	// start, including the initial roster enumeration.
	StartupTimeout time.Duration `yaml:"startupTimeout"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values; SlotCount must still be
//     set by the caller
func DefaultConfig() Config {
	return Config{
		DebounceInterval:     250 * time.Millisecond,
		CongestionRetryLimit: 5,
		HandoffSettleDelay:   2 * time.Second,
		OperationTimeout:     10 * time.Second,
		StartupTimeout:       30 * time.Second,
		ShutdownTimeout:      10 * time.Second,
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.DebounceInterval == 0 {
		cfg.DebounceInterval = defaults.DebounceInterval
	}
	if cfg.CongestionRetryLimit == 0 {
		cfg.CongestionRetryLimit = defaults.CongestionRetryLimit
	}
	if cfg.HandoffSettleDelay == 0 {
		cfg.HandoffSettleDelay = defaults.HandoffSettleDelay
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaults.StartupTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	// Note: SlotCount has no default; pool sizing is an application decision.
}

// Validate checks the configuration for correctness.
//
// Returns:
//   - error: ErrInvalidConfig (wrapped with detail) if any field is invalid
func (c *Config) Validate() error {
	if c.SlotCount <= 0 {
		return fmt.Errorf("%w: slotCount must be positive, got %d", types.ErrInvalidConfig, c.SlotCount)
	}
	if c.DebounceInterval <= 0 {
		return fmt.Errorf("%w: debounceInterval must be positive, got %v", types.ErrInvalidConfig, c.DebounceInterval)
	}
	if c.CongestionRetryLimit < 0 {
		return fmt.Errorf("%w: congestionRetryLimit must not be negative, got %d", types.ErrInvalidConfig, c.CongestionRetryLimit)
	}
	if c.HandoffSettleDelay < 0 {
		return fmt.Errorf("%w: handoffSettleDelay must not be negative, got %v", types.ErrInvalidConfig, c.HandoffSettleDelay)
	}

	return nil
}

// ValidateWithWarnings validates the configuration and logs warnings for
// values that are legal but likely to cause operational trouble.
//
// Parameters:
//   - logger: Logger for warnings
//
// Returns:
//   - error: Same as Validate
func (c *Config) ValidateWithWarnings(logger types.Logger) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.DebounceInterval < 50*time.Millisecond {
		logger.Warn("debounceInterval below 50ms publishes very aggressively under churn",
			"debounceInterval", c.DebounceInterval)
	}
	if c.HandoffSettleDelay < c.DebounceInterval {
		logger.Warn("handoffSettleDelay shorter than debounceInterval, verification may run before the previous coordinator's last publish arrives",
			"handoffSettleDelay", c.HandoffSettleDelay,
			"debounceInterval", c.DebounceInterval)
	}
	if c.SlotCount > 1<<16 {
		logger.Warn("large slot count makes every replicated snapshot proportionally large",
			"slotCount", c.SlotCount)
	}

	return nil
}
