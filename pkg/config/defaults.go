package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittofs/internal/bytesize"
	"github.com/marmos91/dittofs/pkg/claudefs/engine"
	"github.com/marmos91/dittofs/pkg/controlplane/api"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	cfg.Database.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
	applyControlPlaneDefaults(&cfg.ControlPlane)
	applyCacheDefaults(&cfg.Cache)
	applyAdminDefaults(&cfg.Admin)
	applyLockDefaults(&cfg.Lock)
	applyKerberosDefaults(&cfg.Kerberos)
	applyClaudeFSDefaults(&cfg.ClaudeFS)
	applyClaudeFSGatewayDefaults(&cfg.ClaudeFSGateway)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Enabled defaults to false (opt-in for profiling)

	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyMetricsDefaults sets Prometheus metrics server defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyControlPlaneDefaults sets control plane API server defaults.
//
// api.APIConfig.applyDefaults is unexported (only called by the control
// plane server itself on startup), so these mirror the same values here to
// give a freshly loaded Config sensible defaults before the server starts.
func applyControlPlaneDefaults(cfg *api.APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.JWT.AccessTokenDuration == 0 {
		cfg.JWT.AccessTokenDuration = 15 * time.Minute
	}
	if cfg.JWT.RefreshTokenDuration == 0 {
		cfg.JWT.RefreshTokenDuration = 7 * 24 * time.Hour
	}
}

// applyCacheDefaults sets cache defaults.
// Cache path is required (WAL is mandatory for crash recovery) and has no default.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Size == 0 {
		cfg.Size = bytesize.ByteSize(bytesize.GiB)
	}
}

// applyAdminDefaults sets the bootstrap admin user defaults.
func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
}

// applyLockDefaults sets lock manager defaults shared across NLM, SMB and NFSv4.
func applyLockDefaults(cfg *LockConfig) {
	if cfg.MaxLocksPerFile == 0 {
		cfg.MaxLocksPerFile = 1000
	}
	if cfg.MaxLocksPerClient == 0 {
		cfg.MaxLocksPerClient = 10000
	}
	if cfg.MaxTotalLocks == 0 {
		cfg.MaxTotalLocks = 100000
	}
	if cfg.BlockingTimeout == 0 {
		cfg.BlockingTimeout = 60 * time.Second
	}
	if cfg.GracePeriodDuration == 0 {
		cfg.GracePeriodDuration = 90 * time.Second
	}
	if cfg.LeaseBreakTimeout == 0 {
		cfg.LeaseBreakTimeout = 35 * time.Second
	}
}

// applyKerberosDefaults sets Kerberos/RPCSEC_GSS defaults.
// Enabled defaults to false; the remaining fields only matter once a
// deployment turns Kerberos on, but get sensible values regardless.
func applyKerberosDefaults(cfg *KerberosConfig) {
	if cfg.Krb5Conf == "" {
		cfg.Krb5Conf = "/etc/krb5.conf"
	}
	if cfg.MaxClockSkew == 0 {
		cfg.MaxClockSkew = 5 * time.Minute
	}
	if cfg.ContextTTL == 0 {
		cfg.ContextTTL = 8 * time.Hour
	}
	if cfg.MaxContexts == 0 {
		cfg.MaxContexts = 10000
	}
	applyIdentityMappingDefaults(&cfg.IdentityMapping)
}

// applyIdentityMappingDefaults sets Kerberos principal to Unix identity
// mapping defaults.
func applyIdentityMappingDefaults(cfg *IdentityMappingConfig) {
	if cfg.Strategy == "" {
		cfg.Strategy = "static"
	}
	if cfg.DefaultUID == 0 {
		cfg.DefaultUID = 65534
	}
	if cfg.DefaultGID == 0 {
		cfg.DefaultGID = 65534
	}
}

// applyClaudeFSDefaults sets claudefs engine defaults.
//
// LocalSiteID is the one field every deployment must pick deliberately (it
// identifies this site in replication and failover state), so it doubles as
// the "has this section been configured at all" signal: if it's still zero,
// the whole section is replaced with engine.DefaultConfig() rather than
// defaulting each nested component field individually.
func applyClaudeFSDefaults(cfg *engine.Config) {
	if cfg.LocalSiteID == 0 {
		*cfg = engine.DefaultConfig()
	}
}

// applyClaudeFSGatewayDefaults sets defaults for the claudefs TCP gateway.
// Address is the "has this section been configured at all" signal, same
// convention as applyClaudeFSDefaults: an unset Address means nothing in
// this section was deliberately chosen, so the whole thing is defaulted
// on (the gateway should run unless explicitly disabled).
func applyClaudeFSGatewayDefaults(cfg *ClaudeFSGatewayConfig) {
	if cfg.Address == "" {
		cfg.Enabled = true
		cfg.Address = "127.0.0.1:7443"
	}
	if cfg.CommitInterval == 0 {
		cfg.CommitInterval = 1 * time.Second
	}
	if cfg.CompactionInterval == 0 {
		cfg.CompactionInterval = 30 * time.Second
	}
	if cfg.ScrubInterval == 0 {
		cfg.ScrubInterval = 60 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Cache: CacheConfig{
			Path: "/tmp/dittofs-cache",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
