// Package config loads eventbus host configuration.
//
// Configuration is layered, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← EVENTBUS_BUS_NAME, ...
//	├─────────────────────────────┤
//	│  2. Config File             │  ← eventbus.toml / eventbus.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │
//	└─────────────────────────────┘
//
// Files are picked by extension: .toml is read with go-toml, .yaml and .yml
// with yaml.v3.
//
//	[bus]
//	name = "editor"
//	deferQueueHint = 256
//
//	[plugins]
//	dir = "plugins"
//	watch = true
//	debounce = "200ms"
package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"gopkg.in/yaml.v3"

	"github.com/dshills/eventbus/internal/config/loader"
	"github.com/dshills/eventbus/internal/event"
	"github.com/dshills/eventbus/internal/logging"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "EVENTBUS_"

// Errors returned by configuration operations.
var (
	// ErrFileNotFound indicates the configuration file doesn't exist.
	ErrFileNotFound = errors.New("config file not found")

	// ErrValidationFailed indicates the configuration has invalid values.
	ErrValidationFailed = errors.New("validation failed")
)

// Config is the complete host configuration.
type Config struct {
	Bus     BusConfig     `yaml:"bus"`
	Logging LoggingConfig `yaml:"logging"`
	Plugins PluginsConfig `yaml:"plugins"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BusConfig configures the main event bus.
type BusConfig struct {
	// Name is the bus name reported by EventbusName.
	Name string `yaml:"name"`
	// DeferQueueHint sizes the deferred trigger queue.
	DeferQueueHint int `yaml:"deferQueueHint"`
}

// LoggingConfig configures the host logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// PluginsConfig configures the Lua plugin host.
type PluginsConfig struct {
	// Dir is the directory scanned for *.lua plugins. Empty disables plugins.
	Dir string `yaml:"dir"`
	// Watch reloads plugins when their files change.
	Watch bool `yaml:"watch"`
	// Debounce coalesces rapid file changes.
	Debounce time.Duration `yaml:"debounce"`
}

// MetricsConfig toggles OpenTelemetry instruments on the main bus.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Name:           event.MainEventbusName,
			DeferQueueHint: 64,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Plugins: PluginsConfig{
			Debounce: 100 * time.Millisecond,
		},
	}
}

// Load reads the configuration file at path, applies environment overrides,
// and validates the result. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	return LoadWith(nil, path)
}

// LoadWith is Load reading files through read. A nil read uses os.ReadFile.
func LoadWith(read loader.ReadFileFunc, path string) (*Config, error) {
	var data map[string]any

	if path != "" {
		f, err := loader.NewFile(path, read)
		if err != nil {
			return nil, err
		}
		if data, err = f.Load(); err != nil {
			return nil, err
		}
		if data == nil {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
	}

	env, err := loader.Env{Prefix: EnvPrefix}.Load()
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	data = loader.Merge(data, env)

	cfg := Default()
	if err := cfg.apply(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply overlays a merged configuration map onto c.
func (c *Config) apply(data map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error
	if c.Bus.DeferQueueHint < 0 {
		errs = append(errs, fmt.Errorf("bus.deferQueueHint must be >= 0, got %d", c.Bus.DeferQueueHint))
	}
	if c.Plugins.Debounce < 0 {
		errs = append(errs, fmt.Errorf("plugins.debounce must be >= 0, got %s", c.Plugins.Debounce))
	}
	if c.Plugins.Watch && c.Plugins.Dir == "" {
		errs = append(errs, errors.New("plugins.watch requires plugins.dir"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
	}
	return nil
}

// Logger builds the host logger described by the logging section, writing
// to out.
func (c *Config) Logger(out io.Writer) zerolog.Logger {
	cfg := logging.DefaultConfig()
	cfg.Output = out
	cfg.Level = logging.ParseLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return logging.New(cfg)
}

// BusOptions returns the options for constructing the main bus. A nil meter
// leaves metrics disabled.
func (c *Config) BusOptions(logger zerolog.Logger, meter metric.Meter) []event.BusOption {
	opts := []event.BusOption{
		event.WithLogger(logger),
		event.WithDeferQueueHint(c.Bus.DeferQueueHint),
	}
	if c.Bus.Name != "" {
		opts = append(opts, event.WithName(c.Bus.Name))
	}
	if c.Metrics.Enabled && meter != nil {
		opts = append(opts, event.WithMeter(meter))
	}
	return opts
}
