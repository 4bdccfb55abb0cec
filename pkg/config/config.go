package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/airchainpay/relay/pkg/types"
)

// RateLimitConfig controls the ingress sliding-window limiter
type RateLimitConfig struct {
	WindowMs       uint64 `json:"window_ms" yaml:"window_ms"`
	MaxSubmits     int    `json:"max_requests" yaml:"max_requests"`
	MaxConnects    int    `json:"max_connects" yaml:"max_connects"`
	MaxConnections int    `json:"max_connections" yaml:"max_connections"`
}

// SecurityConfig controls authentication and CORS on the API adapter
type SecurityConfig struct {
	EnableAPIKeyValidation bool   `json:"enable_api_key_validation" yaml:"enable_api_key_validation"`
	EnableRateLimiting     bool   `json:"enable_rate_limiting" yaml:"enable_rate_limiting"`
	EnableCORS             bool   `json:"enable_cors" yaml:"enable_cors"`
	CORSOrigins            string `json:"cors_origins" yaml:"cors_origins"`
	JWTSecret              string `json:"jwt_secret" yaml:"jwt_secret"`
	APIKey                 string `json:"api_key" yaml:"api_key"`
}

// MonitoringConfig controls metrics and health checking
type MonitoringConfig struct {
	EnableMetrics       bool   `json:"enable_metrics" yaml:"enable_metrics"`
	EnableHealthChecks  bool   `json:"enable_health_checks" yaml:"enable_health_checks"`
	LogRequests         bool   `json:"log_requests" yaml:"log_requests"`
	MetricsInterval     uint64 `json:"metrics_interval" yaml:"metrics_interval"`
	HealthCheckInterval uint64 `json:"health_check_interval" yaml:"health_check_interval"`
}

// DatabaseConfig controls the on-disk document store and backups
type DatabaseConfig struct {
	DataDir        string `json:"data_dir" yaml:"data_dir"`
	BackupInterval uint64 `json:"backup_interval" yaml:"backup_interval"`
	RetentionDays  int    `json:"backup_retention_days" yaml:"backup_retention_days"`
	AuditRetention uint64 `json:"audit_retention_hours" yaml:"audit_retention_hours"`
}

// QueueConfig controls the transaction queue and worker pool
type QueueConfig struct {
	MaxQueued   int    `json:"max_queued" yaml:"max_queued"`
	Workers     int    `json:"workers" yaml:"workers"`
	GracePeriod uint64 `json:"grace_period_seconds" yaml:"grace_period_seconds"`
}

// RetryConfig controls outbound RPC retry behavior
type RetryConfig struct {
	MaxAttempts       int     `json:"max_attempts" yaml:"max_attempts"`
	InitialDelayMs    uint64  `json:"initial_delay_ms" yaml:"initial_delay_ms"`
	MaxDelayMs        uint64  `json:"max_delay_ms" yaml:"max_delay_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	Jitter            bool    `json:"jitter" yaml:"jitter"`
	PerAttemptMs      uint64  `json:"per_attempt_timeout_ms" yaml:"per_attempt_timeout_ms"`
	OverallMs         uint64  `json:"overall_timeout_ms" yaml:"overall_timeout_ms"`
}

// BreakerConfig controls the per-operation circuit breakers
type BreakerConfig struct {
	FailureThreshold uint32 `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold uint32 `json:"success_threshold" yaml:"success_threshold"`
	OpenDurationSecs uint64 `json:"open_duration_seconds" yaml:"open_duration_seconds"`
}

// Config is the relay's whole runtime configuration. Consumers hold an
// immutable snapshot and refresh on change notification; there is no
// partial update.
type Config struct {
	Environment     string                       `json:"environment" yaml:"environment"`
	RPCURL          string                       `json:"rpc_url" yaml:"rpc_url"`
	ChainID         uint64                       `json:"chain_id" yaml:"chain_id"`
	ContractAddress string                       `json:"contract_address" yaml:"contract_address"`
	LogLevel        string                       `json:"log_level" yaml:"log_level"`
	Port            int                          `json:"port" yaml:"port"`
	Debug           bool                         `json:"debug" yaml:"debug"`
	RateLimits      RateLimitConfig              `json:"rate_limits" yaml:"rate_limits"`
	Security        SecurityConfig               `json:"security" yaml:"security"`
	Monitoring      MonitoringConfig             `json:"monitoring" yaml:"monitoring"`
	Database        DatabaseConfig               `json:"database" yaml:"database"`
	Queue           QueueConfig                  `json:"queue" yaml:"queue"`
	Retry           RetryConfig                  `json:"retry" yaml:"retry"`
	Breaker         BreakerConfig                `json:"breaker" yaml:"breaker"`
	SupportedChains map[uint64]types.ChainConfig `json:"supported_chains" yaml:"supported_chains"`
	Version         string                       `json:"version" yaml:"version"`
}

// Default returns the built-in configuration used when no file is present.
// Chain defaults match the networks the relay ships support for.
func Default() *Config {
	return &Config{
		Environment: "development",
		RPCURL:      "https://rpc.test2.btcs.network",
		ChainID:     1114,
		LogLevel:    "info",
		Port:        4000,
		RateLimits: RateLimitConfig{
			WindowMs:       60_000,
			MaxSubmits:     10,
			MaxConnects:    5,
			MaxConnections: 256,
		},
		Security: SecurityConfig{
			EnableRateLimiting: true,
			EnableCORS:         true,
			CORSOrigins:        "*",
		},
		Monitoring: MonitoringConfig{
			EnableMetrics:       true,
			EnableHealthChecks:  true,
			LogRequests:         true,
			MetricsInterval:     60,
			HealthCheckInterval: 30,
		},
		Database: DatabaseConfig{
			DataDir:        "./data",
			BackupInterval: 3600,
			RetentionDays:  30,
			AuditRetention: 24 * 7,
		},
		Queue: QueueConfig{
			MaxQueued:   10_000,
			Workers:     8,
			GracePeriod: 30,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialDelayMs:    500,
			MaxDelayMs:        30_000,
			BackoffMultiplier: 2.0,
			Jitter:            true,
			PerAttemptMs:      15_000,
			OverallMs:         120_000,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			OpenDurationSecs: 60,
		},
		SupportedChains: map[uint64]types.ChainConfig{
			1114: {
				ChainID:      1114,
				Name:         "Core Testnet2",
				RPCURL:       "https://rpc.test2.btcs.network",
				ExplorerURL:  "https://scan.test2.btcs.network",
				NativeSymbol: "TCORE2",
			},
			84532: {
				ChainID:      84532,
				Name:         "Base Sepolia",
				RPCURL:       "https://sepolia.base.org",
				ExplorerURL:  "https://sepolia.basescan.org",
				NativeSymbol: "ETH",
			},
		},
		Version: "1.0.0",
	}
}

// Load builds a Config from the given file path (JSON or YAML by extension)
// and applies environment overrides. An empty path or a missing file falls
// back to environment-derived defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := unmarshalByExt(path, data, cfg); err != nil {
				return nil, types.Wrap(types.KindConfigInvalid, fmt.Sprintf("parse %s", path), err)
			}
		case os.IsNotExist(err):
			// Fall through to env-derived defaults
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func unmarshalByExt(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// applyEnv overrides config fields from the process environment. Per-chain
// overrides use the chain name upper-cased with spaces replaced by
// underscores, e.g. BASE_SEPOLIA_RPC_URL.
func applyEnv(cfg *Config) {
	if v := envFirst("RELAY_ENV", "RUST_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ChainID = id
		}
	}
	if v := os.Getenv("CONTRACT_ADDRESS"); v != "" {
		cfg.ContractAddress = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Database.DataDir = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Security.APIKey = v
		cfg.Security.EnableAPIKeyValidation = true
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Security.CORSOrigins = v
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimits.MaxSubmits = n
		}
	}

	for id, chain := range cfg.SupportedChains {
		prefix := chainEnvPrefix(chain.Name)
		if v := os.Getenv(prefix + "_RPC_URL"); v != "" {
			chain.RPCURL = v
		}
		if v := os.Getenv(prefix + "_CONTRACT_ADDRESS"); v != "" {
			chain.ContractAddress = v
		}
		if v := os.Getenv(prefix + "_BLOCK_EXPLORER"); v != "" {
			chain.ExplorerURL = v
		}
		cfg.SupportedChains[id] = chain
	}
}

func envFirst(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func chainEnvPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// Validate checks the whole configuration. All violations are collected so
// operators see every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Environment == "" {
		problems = append(problems, "environment must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d outside [1, 65535]", c.Port))
	}
	if len(c.SupportedChains) == 0 {
		problems = append(problems, "at least one chain must be configured")
	}
	for id, chain := range c.SupportedChains {
		if id == 0 || chain.ChainID == 0 {
			problems = append(problems, fmt.Sprintf("chain %q: chain_id must be > 0", chain.Name))
		}
		if id != chain.ChainID {
			problems = append(problems, fmt.Sprintf("chain %q: key %d does not match chain_id %d", chain.Name, id, chain.ChainID))
		}
		u, err := url.Parse(chain.RPCURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			problems = append(problems, fmt.Sprintf("chain %q: rpc_url %q is not an absolute URL", chain.Name, chain.RPCURL))
		}
	}
	if c.Environment == "production" && c.Security.JWTSecret == "" {
		problems = append(problems, "security.jwt_secret must not be empty in production")
	}
	if c.Queue.MaxQueued <= 0 {
		problems = append(problems, "queue.max_queued must be > 0")
	}
	if c.Queue.Workers <= 0 {
		problems = append(problems, "queue.workers must be > 0")
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts must be >= 1")
	}

	if len(problems) > 0 {
		return types.E(types.KindConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Chain returns the configuration for a chain id
func (c *Config) Chain(chainID uint64) (types.ChainConfig, bool) {
	chain, ok := c.SupportedChains[chainID]
	return chain, ok
}

// InitialDelay exposes the initial retry delay as a duration
func (r RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

// MaxDelay exposes the delay cap as a duration
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// PerAttempt exposes the per-attempt timeout as a duration
func (r RetryConfig) PerAttempt() time.Duration {
	return time.Duration(r.PerAttemptMs) * time.Millisecond
}

// Overall exposes the overall timeout as a duration
func (r RetryConfig) Overall() time.Duration {
	return time.Duration(r.OverallMs) * time.Millisecond
}

// OpenDuration exposes the breaker open interval as a duration
func (b BreakerConfig) OpenDuration() time.Duration {
	return time.Duration(b.OpenDurationSecs) * time.Second
}

// Window exposes the rate limit window as a duration
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}
