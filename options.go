package slotpool

// Option configures a Session with optional dependencies.
type Option func(*sessionOptions)

// sessionOptions holds optional Session configuration.
type sessionOptions struct {
	logger  Logger
	metrics MetricsCollector
	hooks   *Hooks
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewSession
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	sess, err := slotpool.NewSession(&cfg, roster, transport, slotpool.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewSession
//
// Example:
//
//	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer)
//	sess, err := slotpool.NewSession(&cfg, roster, transport, slotpool.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *sessionOptions) {
		o.metrics = metrics
	}
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewSession
//
// Example:
//
//	hooks := &slotpool.Hooks{
//	    OnRoleChanged: func(ctx context.Context, from, to slotpool.Role) error {
//	        log.Printf("role changed: %s -> %s", from, to)
//	        return nil
//	    },
//	}
//	sess, err := slotpool.NewSession(&cfg, roster, transport, slotpool.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *sessionOptions) {
		o.hooks = hooks
	}
}
