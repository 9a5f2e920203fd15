package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"parking-lot/internal/logging"
	"parking-lot/internal/parking"
)

const envPrefix = "PARKING"

type Config struct {
	ParkingCapacity int     `mapstructure:"parking_capacity"`
	WaitingCapacity int     `mapstructure:"waiting_capacity"`
	BillingMode     string  `mapstructure:"billing_mode"`
	FeePerMinute    float64 `mapstructure:"fee_per_minute"`
	FeePerHour      float64 `mapstructure:"fee_per_hour"`
	FixedFee        float64 `mapstructure:"fixed_fee"`
	LogLevel        string  `mapstructure:"log_level"`

	DualExit  DualExitSettings `mapstructure:"dual_exit_settings"`
	Server    ServerConfig     `mapstructure:"server"`
	Telemetry TelemetryConfig  `mapstructure:"telemetry"`
	History   HistoryConfig    `mapstructure:"history"`
	Auth      AuthConfig       `mapstructure:"auth"`
}

type DualExitSettings struct {
	// Zero means each lane holds waiting_capacity vehicles.
	NorthWaitingCapacity  int           `mapstructure:"north_waiting_capacity"`
	SouthWaitingCapacity  int           `mapstructure:"south_waiting_capacity"`
	OptimizationThreshold float64       `mapstructure:"optimization_threshold"`
	Cooldown              time.Duration `mapstructure:"cooldown"`
	MaxMoves              int           `mapstructure:"max_moves"`
	AutoRebalanceInterval time.Duration `mapstructure:"auto_rebalance_interval"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Environment  string `mapstructure:"environment"`
}

type HistoryConfig struct {
	Driver      string `mapstructure:"driver"`
	Path        string `mapstructure:"path"`
	DatabaseURL string `mapstructure:"database_url"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("parking_capacity", 5)
	v.SetDefault("waiting_capacity", 3)
	v.SetDefault("billing_mode", string(parking.PerMinute))
	v.SetDefault("fee_per_minute", 1.0)
	v.SetDefault("fee_per_hour", 30.0)
	v.SetDefault("fixed_fee", 50.0)
	v.SetDefault("log_level", "info")

	v.SetDefault("dual_exit_settings.north_waiting_capacity", 0)
	v.SetDefault("dual_exit_settings.south_waiting_capacity", 0)
	v.SetDefault("dual_exit_settings.optimization_threshold", 0.3)
	v.SetDefault("dual_exit_settings.cooldown", 30*time.Second)
	v.SetDefault("dual_exit_settings.max_moves", 3)
	v.SetDefault("dual_exit_settings.auto_rebalance_interval", time.Duration(0))

	v.SetDefault("server.port", 8080)

	v.SetDefault("telemetry.service_name", parking.DefaultServiceName)
	v.SetDefault("telemetry.otlp_endpoint", parking.DefaultOTLPEndpoint)
	v.SetDefault("telemetry.environment", "development")

	v.SetDefault("history.driver", "file")
	v.SetDefault("history.path", "parking_history.json")
	v.SetDefault("history.database_url", "")

	v.SetDefault("auth.jwt_secret", "")
}

// Load reads defaults, then the optional YAML file at path, then
// PARKING_* environment variables (dots become underscores). The usual
// OTEL_* variables are honoured when the PARKING_ ones are unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("telemetry.service_name", "PARKING_TELEMETRY_SERVICE_NAME", "OTEL_SERVICE_NAME")
	_ = v.BindEnv("telemetry.otlp_endpoint", "PARKING_TELEMETRY_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("history.database_url", "PARKING_HISTORY_DATABASE_URL", "DATABASE_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.ParkingCapacity <= 0 {
		errs = append(errs, fmt.Errorf("parking_capacity must be positive, got %d", c.ParkingCapacity))
	}
	if c.WaitingCapacity < 0 {
		errs = append(errs, fmt.Errorf("waiting_capacity must not be negative, got %d", c.WaitingCapacity))
	}
	if _, err := parking.ParseBillingMode(c.BillingMode); err != nil {
		errs = append(errs, err)
	}
	if c.FeePerMinute < 0 || c.FeePerHour < 0 || c.FixedFee < 0 {
		errs = append(errs, errors.New("fees must not be negative"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	d := c.DualExit
	if d.NorthWaitingCapacity < 0 || d.SouthWaitingCapacity < 0 {
		errs = append(errs, errors.New("lane waiting capacities must not be negative"))
	}
	if d.OptimizationThreshold < 0 || d.OptimizationThreshold > 1 {
		errs = append(errs, fmt.Errorf("optimization_threshold must be within [0, 1], got %v", d.OptimizationThreshold))
	}
	if d.Cooldown < 0 {
		errs = append(errs, errors.New("cooldown must not be negative"))
	}
	if d.MaxMoves < 0 {
		errs = append(errs, errors.New("max_moves must not be negative"))
	}
	if d.AutoRebalanceInterval < 0 {
		errs = append(errs, errors.New("auto_rebalance_interval must not be negative"))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	switch c.History.Driver {
	case "none":
	case "file":
		if c.History.Path == "" {
			errs = append(errs, errors.New("history.path is required for the file driver"))
		}
	case "postgres":
		if c.History.DatabaseURL == "" {
			errs = append(errs, errors.New("history.database_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown history driver %q", c.History.Driver))
	}

	return errors.Join(errs...)
}

// SideRoadCapacity is the total for both lanes. A lane left at zero holds
// waiting_capacity vehicles, the same rule the create command uses.
func (c *Config) SideRoadCapacity() int {
	return parking.SideRoadCapacity(c.DualExit.NorthWaitingCapacity, c.DualExit.SouthWaitingCapacity, c.WaitingCapacity)
}

func (c *Config) SystemSettings() parking.Settings {
	mode, err := parking.ParseBillingMode(c.BillingMode)
	if err != nil {
		mode = parking.PerMinute
	}
	return parking.Settings{
		Capacity:        c.ParkingCapacity,
		WaitingCapacity: c.SideRoadCapacity(),
		NorthLane:       c.DualExit.NorthWaitingCapacity,
		SouthLane:       c.DualExit.SouthWaitingCapacity,
		BillingMode:     mode,
		Rates: parking.Rates{
			PerMinute: c.FeePerMinute,
			PerHour:   c.FeePerHour,
			Fixed:     c.FixedFee,
		},
		Optimizer: parking.OptimizerSettings{
			Threshold: c.DualExit.OptimizationThreshold,
			Cooldown:  c.DualExit.Cooldown,
			MaxMoves:  c.DualExit.MaxMoves,
		},
	}
}

func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		ServiceName: c.Telemetry.ServiceName,
		Environment: c.Telemetry.Environment,
		Level:       c.LogLevel,
	}
}

func (c *Config) TelemetrySettings() parking.TelemetryConfig {
	return parking.TelemetryConfig{
		ServiceName:  c.Telemetry.ServiceName,
		OTLPEndpoint: c.Telemetry.OTLPEndpoint,
		Environment:  c.Telemetry.Environment,
	}
}
