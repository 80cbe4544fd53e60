package event

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/dshills/eventbus/internal/event/dispatch"
)

// BusOption configures an event Bus.
type BusOption func(*busConfig)

// busConfig contains configuration for the event bus.
type busConfig struct {
	// name is the diagnostic bus name.
	name string

	// logger receives bus diagnostics.
	logger zerolog.Logger

	// errorHandler receives errors raised outside the triggering call.
	errorHandler func(error)

	// scheduler runs deferred triggers. Nil creates a private one.
	scheduler *dispatch.Scheduler

	// queueHint preallocates the private scheduler queue.
	queueHint int

	// meter creates the bus metric instruments. Nil disables metrics.
	meter metric.Meter
}

// defaultBusConfig returns sensible default configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		logger: zerolog.Nop(),
	}
}

// WithName sets the bus name used in diagnostics.
func WithName(name string) BusOption {
	return func(c *busConfig) {
		c.name = name
	}
}

// WithLogger sets the logger for bus diagnostics.
func WithLogger(logger zerolog.Logger) BusOption {
	return func(c *busConfig) {
		c.logger = logger
	}
}

// WithErrorHandler sets the handler for errors raised by deferred triggers
// and by async triggers of multiple names. By default they are logged.
func WithErrorHandler(h func(error)) BusOption {
	return func(c *busConfig) {
		c.errorHandler = h
	}
}

// WithScheduler runs deferred triggers on a shared scheduler. The bus does
// not stop a scheduler it did not create.
func WithScheduler(s *dispatch.Scheduler) BusOption {
	return func(c *busConfig) {
		c.scheduler = s
	}
}

// WithDeferQueueHint preallocates room for n deferred triggers.
func WithDeferQueueHint(n int) BusOption {
	return func(c *busConfig) {
		if n > 0 {
			c.queueHint = n
		}
	}
}

// WithMeter records trigger metrics with the given meter.
func WithMeter(meter metric.Meter) BusOption {
	return func(c *busConfig) {
		c.meter = meter
	}
}
