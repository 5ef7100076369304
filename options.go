package odindata

import (
	"github.com/dw96/odin-data/internal/plugin"
	"github.com/dw96/odin-data/pkg/log"
)

// Logger is the structured logging interface used throughout the
// processor. See pkg/log for the bundled zerolog adapter.
type Logger = log.Logger

// Factory creates plugin instances for a registry index.
type Factory = plugin.Factory

// Option configures optional behavior of a FrameProcessor.
type Option func(*options)

type options struct {
	logger    log.Logger
	factories map[string]plugin.Factory
}

func defaultOptions() options {
	return options{
		logger:    log.NewNoopLogger(),
		factories: make(map[string]plugin.Factory),
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFactory registers an additional plugin factory under the given
// registry index, alongside the built-in plugins.
func WithFactory(index string, factory Factory) Option {
	return func(o *options) {
		o.factories[index] = factory
	}
}
