package event

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterScope is the instrumentation scope for bus metrics.
const meterScope = "github.com/dshills/eventbus/internal/event"

// metrics records trigger activity as OpenTelemetry instruments.
type metrics struct {
	triggers  metric.Int64Counter
	listeners metric.Int64Counter
	failures  metric.Int64Counter
	duration  metric.Float64Histogram
}

// newMetrics creates the bus instruments. A nil meter, or a meter that
// fails to create an instrument, yields no-op instruments.
func newMetrics(meter metric.Meter, logger zerolog.Logger) *metrics {
	if meter != nil {
		m, err := createMetrics(meter)
		if err == nil {
			return m
		}
		logger.Warn().Err(err).Msg("metrics disabled")
	}
	m, _ := createMetrics(noop.NewMeterProvider().Meter(meterScope))
	return m
}

func createMetrics(meter metric.Meter) (*metrics, error) {
	triggers, err := meter.Int64Counter("eventbus.triggers",
		metric.WithDescription("Number of trigger calls"),
	)
	if err != nil {
		return nil, err
	}

	listeners, err := meter.Int64Counter("eventbus.listeners.matched",
		metric.WithDescription("Number of listener bindings matched by triggers"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("eventbus.failures",
		metric.WithDescription("Number of triggers that failed with a listener error"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("eventbus.trigger.duration",
		metric.WithDescription("Duration of listener invocation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		triggers:  triggers,
		listeners: listeners,
		failures:  failures,
		duration:  duration,
	}, nil
}

// record reports one completed trigger call.
func (m *metrics) record(bus string, mode TriggerMode, matched int, elapsed time.Duration, failed bool) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("bus", bus),
		attribute.String("mode", mode.String()),
	)
	m.triggers.Add(ctx, 1, attrs)
	m.listeners.Add(ctx, int64(matched), attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if failed {
		m.failures.Add(ctx, 1, attrs)
	}
}
