package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Abuse     AbuseConfig     `mapstructure:"abuse"`
	Risk      RiskConfig      `mapstructure:"risk"`
}

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	AdminPort      int    `mapstructure:"admin_port"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TLS      bool   `mapstructure:"tls"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// MonitorConfig drives the session registry and its per-session endpoints.
type MonitorConfig struct {
	EndpointHost  string        `mapstructure:"endpoint_host"`
	PortRangeFrom int           `mapstructure:"port_range_from"`
	PortRangeTo   int           `mapstructure:"port_range_to"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type AdmissionConfig struct {
	// Connections scoring at or above the threshold are rejected
	// before any session binding occurs.
	Threshold float64 `mapstructure:"threshold"`
}

type AbuseConfig struct {
	ConnectionLimit  int           `mapstructure:"connection_limit"`
	ConnectionWindow time.Duration `mapstructure:"connection_window"`
	EventLimit       int           `mapstructure:"event_limit"`
	EventWindow      time.Duration `mapstructure:"event_window"`
	ShortBan         time.Duration `mapstructure:"short_ban"`
	MediumBan        time.Duration `mapstructure:"medium_ban"`
	LongBan          time.Duration `mapstructure:"long_ban"`
	ViolationMemory  time.Duration `mapstructure:"violation_memory"`
	Whitelist        []string      `mapstructure:"whitelist"`
}

type RiskConfig struct {
	WindowSize           int     `mapstructure:"window_size"`
	AlertThreshold       float64 `mapstructure:"alert_threshold"`
	SuspendThreshold     float64 `mapstructure:"suspend_threshold"`
	DecayPerTick         float64 `mapstructure:"decay_per_tick"`
	DecayFloor           float64 `mapstructure:"decay_floor"`
	KeybindIncrement     float64 `mapstructure:"keybind_increment"`
	KeybindDecay         float64 `mapstructure:"keybind_decay"`
	KeybindMinIncrement  float64 `mapstructure:"keybind_min_increment"`
	LinearMinRun         int     `mapstructure:"linear_min_run"`
	LinearPerSample      float64 `mapstructure:"linear_per_sample"`
	LinearCap            float64 `mapstructure:"linear_cap"`
	MinVisibilityLossMs  int64   `mapstructure:"min_visibility_loss_ms"`
	VisibilityPerSecond  float64 `mapstructure:"visibility_per_second"`
	VisibilityCap        float64 `mapstructure:"visibility_cap"`
	AutomationIncrement  float64 `mapstructure:"automation_increment"`
	TimingVarianceMax    float64 `mapstructure:"timing_variance_max"`
	DirectionVarianceMax float64 `mapstructure:"direction_variance_max"`
}

var globalConfig Config

func Load(configPath string) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file config.yaml not found, using only environment variables")
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := viper.Unmarshal(&globalConfig, decodeHook); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaultValues()

	return globalConfig.Validate()
}

func setDefaultValues() {
	if globalConfig.Database.SSLMode == "" {
		globalConfig.Database.SSLMode = "disable"
	}
	if globalConfig.Server.Host == "" {
		globalConfig.Server.Host = "0.0.0.0"
	}
	if globalConfig.Monitor.EndpointHost == "" {
		globalConfig.Monitor.EndpointHost = globalConfig.Server.Host
	}
	if globalConfig.Monitor.IdleTimeout == 0 {
		globalConfig.Monitor.IdleTimeout = 5 * time.Minute
	}
	if globalConfig.Monitor.SweepInterval == 0 {
		globalConfig.Monitor.SweepInterval = 30 * time.Second
	}
	if globalConfig.Admission.Threshold == 0 {
		globalConfig.Admission.Threshold = 60
	}
}

// Validate rejects configurations that cannot produce a working
// registry. An unusable port range is the only fatal startup
// condition owned by this core.
func (c *Config) Validate() error {
	if c.Monitor.PortRangeFrom <= 0 || c.Monitor.PortRangeTo > 65535 {
		return fmt.Errorf("monitor port range [%d, %d] outside valid bounds", c.Monitor.PortRangeFrom, c.Monitor.PortRangeTo)
	}
	if c.Monitor.PortRangeTo < c.Monitor.PortRangeFrom {
		return fmt.Errorf("monitor port range end %d precedes start %d", c.Monitor.PortRangeTo, c.Monitor.PortRangeFrom)
	}
	if c.Monitor.IdleTimeout < 0 || c.Monitor.SweepInterval < 0 {
		return errors.New("monitor timeouts must not be negative")
	}
	return nil
}

func GetConfig() *Config {
	return &globalConfig
}
