package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Server   ServerConfig   `yaml:"server"`
	Uplink   UplinkConfig   `yaml:"uplink" validate:"required"`
	Filter   FilterConfig   `yaml:"filter"`
	Route    RouteConfig    `yaml:"route"`
	Queue    QueueConfig    `yaml:"queue"`
	Capture  CaptureConfig  `yaml:"capture"`
	Geofence GeofenceConfig `yaml:"geofence"`
	Ticker   TickerConfig   `yaml:"ticker"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
	Events LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// ServerConfig holds local status HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// UplinkConfig holds the remote tracking server settings.
type UplinkConfig struct {
	BaseURL          string   `yaml:"base_url" validate:"required,url"`
	LocationEndpoint string   `yaml:"location_endpoint" validate:"required,startswith=/"`
	Timeout          Duration `yaml:"timeout"`
}

// FilterConfig holds accuracy filtering settings.
type FilterConfig struct {
	Enabled               bool     `yaml:"enabled"`
	MaxAccuracyRadius     Distance `yaml:"max_accuracy_radius"`
	GoodAccuracyThreshold Distance `yaml:"good_accuracy_threshold"`
	ConfidenceThreshold   float64  `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	UseSmoothing          bool     `yaml:"use_smoothing"`
	RejectLowAccuracy     bool     `yaml:"reject_low_accuracy"`
}

// RouteConfig holds route accumulator settings.
type RouteConfig struct {
	MaxPoints       int      `yaml:"max_points" validate:"gt=0"`
	MinMovement     Distance `yaml:"min_movement"`
	SimplifyEpsilon Distance `yaml:"simplify_epsilon"`
	SimplifyAfter   int      `yaml:"simplify_after" validate:"gt=0"`
	Staleness       Duration `yaml:"staleness"`
	SweepInterval   Duration `yaml:"sweep_interval"`
}

// QueueConfig holds offline delivery queue settings.
type QueueConfig struct {
	MaxSize   int      `yaml:"max_size" validate:"gt=0"`
	BatchSize int      `yaml:"batch_size" validate:"gt=0"`
	MaxAge    Duration `yaml:"max_age"`
	Drain     Duration `yaml:"drain_interval"`
	Prune     Duration `yaml:"prune_interval"`
}

// CaptureConfig holds background capture sampling settings.
type CaptureConfig struct {
	TimeInterval     Duration `yaml:"time_interval"`
	DistanceInterval Distance `yaml:"distance_interval"`
	Accuracy         string   `yaml:"accuracy" validate:"oneof=low balanced high highest"`
	Reconcile        Duration `yaml:"reconcile_interval"`
	RestartAttempts  int      `yaml:"restart_attempts" validate:"gt=0,lte=10"`
	RestartBaseDelay Duration `yaml:"restart_base_delay"`
}

// FenceConfig describes one circular geofence.
type FenceConfig struct {
	Name   string   `yaml:"name" validate:"required"`
	Lat    float64  `yaml:"lat" validate:"gte=-90,lte=90"`
	Lon    float64  `yaml:"lon" validate:"gte=-180,lte=180"`
	Radius Distance `yaml:"radius" validate:"gt=0"`
}

// GeofenceConfig holds the configured fences.
type GeofenceConfig struct {
	Fences []FenceConfig `yaml:"fences" validate:"dive"`
}

// TickerConfig holds the scheduler heartbeat settings.
type TickerConfig struct {
	Loop Duration `yaml:"loop"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/fieldtrack.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/fieldtrack.db",
		},
		Server: ServerConfig{
			Address: "localhost:1840",
		},
		Uplink: UplinkConfig{
			BaseURL:          "https://tracking.example.com",
			LocationEndpoint: "/api/employee-tracking/location",
			Timeout:          Duration(10 * time.Second),
		},
		Filter: FilterConfig{
			Enabled:               true,
			MaxAccuracyRadius:     Distance(100),
			GoodAccuracyThreshold: Distance(20),
			ConfidenceThreshold:   0.4,
			UseSmoothing:          true,
			RejectLowAccuracy:     false,
		},
		Route: RouteConfig{
			MaxPoints:       500,
			MinMovement:     Distance(5),
			SimplifyEpsilon: Distance(10),
			SimplifyAfter:   100,
			Staleness:       Duration(2 * time.Hour),
			SweepInterval:   Duration(30 * time.Minute),
		},
		Queue: QueueConfig{
			MaxSize:   200,
			BatchSize: 5,
			MaxAge:    Duration(Day),
			Drain:     Duration(time.Minute),
			Prune:     Duration(time.Hour),
		},
		Capture: CaptureConfig{
			TimeInterval:     Duration(15 * time.Second),
			DistanceInterval: Distance(10),
			Accuracy:         "balanced",
			Reconcile:        Duration(time.Minute),
			RestartAttempts:  3,
			RestartBaseDelay: Duration(2 * time.Second),
		},
		Ticker: TickerConfig{
			Loop: Duration(5 * time.Second),
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Fieldtrack Configuration
# -----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
