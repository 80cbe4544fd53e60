package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/dshills/eventbus/internal/config"
	"github.com/dshills/eventbus/internal/event"
	"github.com/dshills/eventbus/internal/plugin"
)

// host is the running bus with its plugins.
type host struct {
	cfg     *config.Config
	logger  zerolog.Logger
	bus     *event.Bus
	plugins *plugin.Manager
	reader  *sdkmetric.ManualReader
}

// loadConfig reads the configuration and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, exitError(exitConfig, "loading config: %v", err)
	}

	if dir, _ := cmd.Flags().GetString("plugins"); dir != "" {
		cfg.Plugins.Dir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// startHost builds the bus and loads plugins. Plugin load failures are
// logged; the host runs with the plugins that loaded.
func startHost(ctx context.Context, cfg *config.Config, logOut io.Writer) (*host, error) {
	h := &host{
		cfg:    cfg,
		logger: cfg.Logger(logOut),
	}

	var meter metric.Meter
	if cfg.Metrics.Enabled {
		h.reader = sdkmetric.NewManualReader()
		meter = sdkmetric.NewMeterProvider(sdkmetric.WithReader(h.reader)).Meter("eventbus")
	}

	h.bus = event.NewBus(cfg.BusOptions(h.logger, meter)...)
	h.plugins = plugin.NewManager(h.bus, plugin.WithLogger(h.logger))

	if cfg.Plugins.Dir == "" {
		return h, nil
	}
	if _, err := h.plugins.LoadDir(ctx, cfg.Plugins.Dir); err != nil {
		var pathErr *fs.PathError
		if h.plugins.Count() == 0 && errors.As(err, &pathErr) {
			_ = h.close(ctx)
			return nil, exitError(exitPlugin, "loading plugins: %v", err)
		}
		h.logger.Warn().Err(err).Msg("some plugins failed to load")
	}
	return h, nil
}

// close unloads plugins and stops the bus.
func (h *host) close(ctx context.Context) error {
	return errors.Join(h.plugins.Close(ctx), h.bus.Close(ctx))
}

// writeMetrics prints a one-line summary per instrument.
func (h *host) writeMetrics(ctx context.Context, out io.Writer) error {
	if h.reader == nil {
		return nil
	}

	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collecting metrics: %w", err)
	}

	lines := make(map[string]string)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				lines[m.Name] = fmt.Sprintf("%s %d", m.Name, total)
			case metricdata.Histogram[float64]:
				var count uint64
				var sum float64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				lines[m.Name] = fmt.Sprintf("%s count=%d sum=%gs", m.Name, count, sum)
			}
		}
	}

	names := make([]string, 0, len(lines))
	for name := range lines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(out, "metric", lines[name])
	}
	return nil
}
