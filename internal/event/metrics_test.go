package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMeter returns a meter provider backed by a manual reader.
func newTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

// collectMetrics reads all metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

// findMetric searches for a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

// sumByMode totals an int64 sum per mode attribute.
func sumByMode(t *testing.T, m *metricdata.Metrics) map[string]int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", m.Data)

	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		mode, _ := dp.Attributes.Value(attribute.Key("mode"))
		out[mode.AsString()] += dp.Value
	}
	return out
}

func TestMetrics_RecordsTriggers(t *testing.T) {
	reader, mp := newTestMeter()
	b := newTestBus(t, WithName("metered"), WithMeter(mp.Meter("test")))

	require.NoError(t, b.On("a", returning(1), nil))
	require.NoError(t, b.On("all", returning(2), nil))
	require.NoError(t, b.On("fail", failing(errors.New("boom")), nil))

	require.NoError(t, b.Trigger("a"))
	_, err := b.TriggerSync("a")
	require.NoError(t, err)
	_, err = b.TriggerAsync("a").Await(testContext(t))
	require.NoError(t, err)
	assert.Error(t, b.Trigger("fail"))

	rm := collectMetrics(t, reader)

	assert.Equal(t, map[string]int64{"trigger": 2, "sync": 1, "async": 1},
		sumByMode(t, findMetric(rm, "eventbus.triggers")))
	assert.Equal(t, map[string]int64{"trigger": 4, "sync": 2, "async": 2},
		sumByMode(t, findMetric(rm, "eventbus.listeners.matched")))
	assert.Equal(t, map[string]int64{"trigger": 1},
		sumByMode(t, findMetric(rm, "eventbus.failures")))

	dur := findMetric(rm, "eventbus.trigger.duration")
	require.NotNil(t, dur)
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
		bus, _ := dp.Attributes.Value(attribute.Key("bus"))
		assert.Equal(t, "metered", bus.AsString())
	}
	assert.Equal(t, uint64(4), count)
}

func TestMetrics_NilMeterIsNoop(t *testing.T) {
	m := newMetrics(nil, newTestBus(t).logger)
	require.NotNil(t, m)
	assert.NotPanics(t, func() {
		m.record("bus", ModeSync, 3, 0, true)
	})
}
