package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Default strategy: zero values (0, "", false, nil) are replaced with
// defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyNamespaceDefaults(&cfg.Namespace)
	applyCoalescerDefaults(&cfg.Coalescer)
	applyCodecDefaults(&cfg.Codec)
	applyAuditDefaults(&cfg.Audit)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.NFSAddr == "" {
		cfg.NFSAddr = ":2049"
	}
	if cfg.PortmapAddr == "" {
		cfg.PortmapAddr = ":111"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if len(cfg.LargeSequentialMarkers) == 0 {
		cfg.LargeSequentialMarkers = []string{"/objects/pack/", ".pack"}
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "badger"
	}
	if cfg.Badger.Dir == "" {
		cfg.Badger.Dir = "/var/lib/graymamba/badger"
	}
	if cfg.Backend == "redis" && len(cfg.Redis.Addrs) == 0 {
		cfg.Redis.Addrs = []string{"localhost:6379"}
	}
}

func applyNamespaceDefaults(cfg *NamespaceConfig) {
	if cfg.Community == "" {
		cfg.Community = "default"
	}
	if cfg.NamespaceID == "" {
		cfg.NamespaceID = "default"
	}
}

func applyCoalescerDefaults(cfg *CoalescerConfig) {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 500 * time.Millisecond
	}
	if cfg.CommitParallelism == 0 {
		cfg.CommitParallelism = 10
	}
}

func applyCodecDefaults(cfg *CodecConfig) {
	if cfg.Required == 0 {
		cfg.Required = 3
	}
	if cfg.Total == 0 {
		cfg.Total = 5
	}
}

func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 10 * time.Second
	}
}

// GetDefaultConfig returns a Config populated entirely with default
// values, suitable for a fresh installation.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
