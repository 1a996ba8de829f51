package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/ripple/internal/errors"
	"github.com/vango-dev/ripple/internal/logging"
	"github.com/vango-dev/ripple/pkg/app"
	"github.com/vango-dev/ripple/pkg/widget"
)

const (
	// FileName is the default settings file name.
	FileName = "ripple.yaml"

	// DefaultDevtoolsAddr is where the devtools server listens by default.
	DefaultDevtoolsAddr = "127.0.0.1:7070"

	// DefaultFrameHistory is how many frames the devtools server keeps.
	DefaultFrameHistory = 120
)

// Config is the content of ripple.yaml.
type Config struct {
	// Name identifies the app in logs and metrics labels.
	Name string `mapstructure:"name" json:"name"`

	Frame    FrameConfig    `mapstructure:"frame" json:"frame"`
	Metrics  MetricsConfig  `mapstructure:"metrics" json:"metrics"`
	Devtools DevtoolsConfig `mapstructure:"devtools" json:"devtools"`
	Log      LogConfig      `mapstructure:"log" json:"log"`
	Dev      DevConfig      `mapstructure:"dev" json:"dev"`

	path string
}

// FrameConfig controls frame scheduling.
type FrameConfig struct {
	// Delay is how long a frame request waits before the frame runs.
	Delay time.Duration `mapstructure:"delay" json:"delay"`

	Viewport ViewportConfig `mapstructure:"viewport" json:"viewport"`
}

// ViewportConfig is the root layout size.
type ViewportConfig struct {
	Width  float64 `mapstructure:"width" json:"width"`
	Height float64 `mapstructure:"height" json:"height"`
}

// MetricsConfig names the Prometheus metrics.
type MetricsConfig struct {
	Namespace string            `mapstructure:"namespace" json:"namespace"`
	Subsystem string            `mapstructure:"subsystem" json:"subsystem"`
	Labels    map[string]string `mapstructure:"labels" json:"labels,omitempty"`
	Buckets   []float64         `mapstructure:"buckets" json:"buckets,omitempty"`
}

// DevtoolsConfig controls the devtools HTTP server.
type DevtoolsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" json:"addr"`

	// FrameHistory is how many recent frames /debug/frames replays to a
	// new client.
	FrameHistory int `mapstructure:"frame_history" json:"frame_history"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// DevConfig holds development conveniences.
type DevConfig struct {
	// Watch reloads the settings file while the app runs.
	Watch bool `mapstructure:"watch" json:"watch"`
}

// New returns a Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads FileName from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads, decodes and validates the file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("C001").
				WithDetail("No settings file at " + path).
				Wrap(err)
		}
		return nil, errors.New("C002").Wrap(err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes YAML or JSON settings over the defaults and validates
// the result.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.New("C002").Wrap(err)
	}

	cfg := New()
	if err := decode(raw, cfg); err != nil {
		return nil, errors.New("C002").Wrap(err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "ripple"
	}
	if c.Frame.Viewport.Width == 0 {
		c.Frame.Viewport.Width = 1280
	}
	if c.Frame.Viewport.Height == 0 {
		c.Frame.Viewport.Height = 800
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "ripple"
	}
	if c.Devtools.Addr == "" {
		c.Devtools.Addr = DefaultDevtoolsAddr
	}
	if c.Devtools.FrameHistory == 0 {
		c.Devtools.FrameHistory = DefaultFrameHistory
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = string(logging.FormatText)
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New("C003").WithDetail(fmt.Sprintf(format, args...))
	}
	if c.Frame.Delay < 0 {
		return invalid("frame.delay must not be negative, got %s", c.Frame.Delay)
	}
	if c.Frame.Viewport.Width < 0 || c.Frame.Viewport.Height < 0 {
		return invalid("frame.viewport must not be negative")
	}
	for i := 1; i < len(c.Metrics.Buckets); i++ {
		if c.Metrics.Buckets[i] <= c.Metrics.Buckets[i-1] {
			return invalid("metrics.buckets must be strictly increasing")
		}
	}
	if c.Devtools.FrameHistory < 0 {
		return invalid("devtools.frame_history must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return invalid("log.format: %v", err)
	}
	return nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// AppConfig converts the settings to runtime settings.
func (c *Config) AppConfig() app.Config {
	return app.Config{
		Name:       c.Name,
		FrameDelay: c.Frame.Delay,
		Viewport: widget.Constraints{
			MaxW: c.Frame.Viewport.Width,
			MaxH: c.Frame.Viewport.Height,
		},
	}
}

// AppMetrics converts the metrics section for app.WithMetricsConfig.
func (c *Config) AppMetrics() app.MetricsConfig {
	mc := app.DefaultMetricsConfig()
	mc.Namespace = c.Metrics.Namespace
	mc.Subsystem = c.Metrics.Subsystem
	if len(c.Metrics.Labels) > 0 {
		mc.ConstLabels = c.Metrics.Labels
	}
	if len(c.Metrics.Buckets) > 0 {
		mc.Buckets = c.Metrics.Buckets
	}
	return mc
}
