package derive

import (
	"context"
	"log/slog"
)

const (
	// DefaultMaxRecompute bounds how often one computed property may be
	// evaluated within a single settle pass.
	DefaultMaxRecompute = 8

	// DefaultMaxBatches bounds how many queued batches one SetData call
	// drains before giving up.
	DefaultMaxBatches = 64
)

// Config holds component engine settings.
type Config struct {
	// Logger receives diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger

	// MaxRecompute caps evaluations of one computed property per pass.
	// Default: DefaultMaxRecompute.
	MaxRecompute int

	// MaxBatches caps batches drained by one SetData or Attached call.
	// Default: DefaultMaxBatches.
	MaxBatches int

	// Observers are notified around every settle pass.
	Observers []Observer

	// Context is handed to observers. Default: context.Background().
	Context context.Context
}

// Option configures a Component.
type Option func(*Config)

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMaxRecompute sets the per-pass evaluation bound for one computed property.
func WithMaxRecompute(n int) Option {
	return func(c *Config) {
		c.MaxRecompute = n
	}
}

// WithMaxBatches sets the bound on batches drained by one call.
func WithMaxBatches(n int) Option {
	return func(c *Config) {
		c.MaxBatches = n
	}
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(c *Config) {
		if o != nil {
			c.Observers = append(c.Observers, o)
		}
	}
}

// WithContext sets the context handed to observers.
func WithContext(ctx context.Context) Option {
	return func(c *Config) {
		c.Context = ctx
	}
}

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRecompute <= 0 {
		cfg.MaxRecompute = DefaultMaxRecompute
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = DefaultMaxBatches
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	return cfg
}
