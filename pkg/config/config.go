// Package config loads graymamba's static configuration from a YAML
// file, environment variables, and built-in defaults, grounded on the
// teacher's pkg/config/config.go viper+mapstructure+validator pattern.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents graymamba's static configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (GRAYMAMBA_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Environment variables override only keys present in the configuration
// file; when no file is found, Load returns the defaults unchanged.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Namespace NamespaceConfig `mapstructure:"namespace" yaml:"namespace"`
	Coalescer CoalescerConfig `mapstructure:"coalescer" yaml:"coalescer"`
	Codec     CodecConfig     `mapstructure:"codec" yaml:"codec"`
	Audit     AuditConfig     `mapstructure:"audit" yaml:"audit"`
}

// ServerConfig controls the NFS/MOUNT/PORTMAP listeners and shutdown
// behavior.
type ServerConfig struct {
	// NFSAddr is the address the combined NFSv3/MOUNT listener binds to.
	NFSAddr string `mapstructure:"nfs_addr" validate:"required" yaml:"nfs_addr"`

	// PortmapAddr is the address the PORTMAP listener binds to.
	PortmapAddr string `mapstructure:"portmap_addr" validate:"required" yaml:"portmap_addr"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// LargeSequentialMarkers generalizes the original's hardcoded Git
	// pack-file special case and is passed to vfs.Config. The VFS read
	// and write paths do not consult it: every file goes through the
	// write coalescer whether or not its path matches.
	LargeSequentialMarkers []string `mapstructure:"large_sequential_markers" yaml:"large_sequential_markers"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing and
// Pyroscope continuous profiling.
type TelemetryConfig struct {
	Enabled    bool             `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string           `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool             `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64          `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig  `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig controls the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// StoreConfig selects and configures the backing store.
type StoreConfig struct {
	// Backend selects the store implementation: "badger" or "redis".
	Backend string       `mapstructure:"backend" validate:"required,oneof=badger redis" yaml:"backend"`
	Badger  BadgerConfig `mapstructure:"badger" yaml:"badger"`
	Redis   RedisConfig  `mapstructure:"redis" yaml:"redis"`
}

// BadgerConfig configures the embedded badger backend.
type BadgerConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// RedisConfig configures the remote/sharded redis backend.
type RedisConfig struct {
	Addrs       []string `mapstructure:"addrs" yaml:"addrs"`
	Password    string   `mapstructure:"password" yaml:"password,omitempty"`
	DB          int      `mapstructure:"db" yaml:"db"`
	ClusterMode bool     `mapstructure:"cluster_mode" yaml:"cluster_mode"`
}

// NamespaceConfig identifies the community/namespace scope this server
// instance serves.
type NamespaceConfig struct {
	Community   string `mapstructure:"community" validate:"required" yaml:"community"`
	NamespaceID string `mapstructure:"namespace_id" validate:"required" yaml:"namespace_id"`
}

// CoalescerConfig controls the write-buffering idle flusher.
type CoalescerConfig struct {
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" validate:"required,gt=0" yaml:"idle_timeout"`
	CommitParallelism int           `mapstructure:"commit_parallelism" validate:"required,gt=0" yaml:"commit_parallelism"`
}

// CodecConfig controls the Reed-Solomon secret-sharing envelope.
type CodecConfig struct {
	Required int `mapstructure:"required" validate:"required,gt=0" yaml:"required"`
	Total    int `mapstructure:"total" validate:"required,gtefield=Required" yaml:"total"`
}

// AuditConfig controls the Merkle audit pipeline.
type AuditConfig struct {
	WindowSize   time.Duration `mapstructure:"window_size" validate:"required,gt=0" yaml:"window_size"`
	ProofEnabled bool          `mapstructure:"proof_enabled" yaml:"proof_enabled"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error if no
// config file exists at the resolved path.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"initialize one first, or pass --config /path/to/config.yaml", GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML form.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate runs struct validation tags over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("GRAYMAMBA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "graymamba")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "graymamba")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
