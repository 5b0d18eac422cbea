package bootstrap

import (
	"github.com/lyzr/materials/common/config"
	"github.com/lyzr/materials/common/logger"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipDB        bool
	skipRedis     bool
	optionalRedis bool
	skipTelemetry bool
	migrate       bool
	customLogger  *logger.Logger
	customConfig  *config.Config
}

// WithoutDB skips the metadata database. Commands that only touch the blob
// stores use it.
func WithoutDB() Option {
	return func(o *options) {
		o.skipDB = true
	}
}

// WithoutRedis skips Redis entirely
func WithoutRedis() Option {
	return func(o *options) {
		o.skipRedis = true
	}
}

// WithOptionalRedis keeps going without Redis when it cannot be reached.
// Callers must then fall back to process-local state.
func WithOptionalRedis() Option {
	return func(o *options) {
		o.optionalRedis = true
	}
}

// WithoutTelemetry skips the pprof and metrics listeners
func WithoutTelemetry() Option {
	return func(o *options) {
		o.skipTelemetry = true
	}
}

// WithMigrations applies pending schema migrations right after connecting
func WithMigrations() Option {
	return func(o *options) {
		o.migrate = true
	}
}

// WithCustomLogger uses log instead of building one from config
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig uses cfg instead of loading from env
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}
