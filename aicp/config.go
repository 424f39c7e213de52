package aicp

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/tboxorg/aicp/internal/xlog"
	"github.com/tboxorg/aicp/spinlock"
)

// Config holds the proactor's construction-time parameters. Use Option
// values with New rather than constructing Config directly, following the
// functional-options convention used across the pack (cloudwego-gopkg's
// sub-packages and joeycumines-go-utilpkg's logiface both configure this
// way).
type Config struct {
	PoolGrow       int
	QueueCapacity  int
	MaxEvents      int
	DefaultTimeout time.Duration
	SmallFootprint bool
	Logger         zerolog.Logger
	Workers        int
}

// Option configures a Proactor at construction time.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		PoolGrow:       256,
		QueueCapacity:  4096,
		MaxEvents:      1024,
		DefaultTimeout: -1,
		Logger:         xlog.Default(),
		Workers:        1,
	}
}

// WithPoolGrow sets the AICO pool's slab growth size (0 resolves to the
// library default: 16 small-footprint, 256 otherwise).
func WithPoolGrow(n int) Option { return func(c *Config) { c.PoolGrow = n } }

// WithQueueCapacity bounds each priority spak queue.
func WithQueueCapacity(n int) Option { return func(c *Config) { c.QueueCapacity = n } }

// WithMaxEvents sizes the reactor's internal event buffer.
func WithMaxEvents(n int) Option { return func(c *Config) { c.MaxEvents = n } }

// WithDefaultTimeout seeds every AICO's four per-op timeout slots (CONN/
// SEND/RECV/ACPT) at construction time; -1 (the default) disables it.
// Individual slots can still be overridden per-AICO via AICO.SetTimeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Config) { c.DefaultTimeout = d }
}

// WithLogger installs a structured logger (see internal/xlog). Without this
// option the proactor logs through xlog.Default() (stderr, Info level);
// passing the zero zerolog.Logger discards all output.
func WithLogger(l zerolog.Logger) Option { return func(c *Config) { c.Logger = l } }

// WithSmallFootprint mirrors the library's __tb_small__ build variant: a
// 16-item pool grow size and a 256-slot lock profiler table instead of the
// defaults.
func WithSmallFootprint() Option {
	return func(c *Config) {
		c.SmallFootprint = true
		if c.PoolGrow == 256 {
			c.PoolGrow = 16
		}
		spinlock.SmallFootprint()
	}
}
