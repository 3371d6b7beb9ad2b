// Package config loads compwatch configuration from a YAML file with
// environment overrides (prefix COMPWATCH_, dots become underscores).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lynx-chain/compwatch/internal/chain"
)

// Config is the complete configuration for the watcher CLI and service.
type Config struct {
	Chain   ChainConfig   `mapstructure:"chain"`
	Watcher WatcherConfig `mapstructure:"watcher"`
	Cache   CacheConfig   `mapstructure:"cache"`
	API     APIConfig     `mapstructure:"api"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// ChainConfig holds node connection settings.
type ChainConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	WSURL          string        `mapstructure:"ws_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestsPerSec int           `mapstructure:"requests_per_sec"`
}

// WatcherConfig holds per-watch defaults.
type WatcherConfig struct {
	WindowSize           int           `mapstructure:"window_size"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	TransientMaxInterval time.Duration `mapstructure:"transient_max_interval"`
	Commitment           string        `mapstructure:"commitment"`
	MaxLinesPerContainer int           `mapstructure:"max_lines_per_container"`
}

// CacheConfig selects the seen-container cache backend.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Backend       string        `mapstructure:"backend"` // "memory" or "redis"
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddress  string        `mapstructure:"redis_address"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
}

// APIConfig holds the watch service HTTP settings. An empty JWTSecret
// leaves the mutating endpoints unauthenticated.
type APIConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Timeout   time.Duration `mapstructure:"timeout"`
	JWTSecret string        `mapstructure:"jwt_secret"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from path (optional) plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COMPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chain.rpc_url", "http://localhost:8899")
	v.SetDefault("chain.ws_url", "ws://localhost:8900")
	v.SetDefault("chain.timeout", 30*time.Second)
	v.SetDefault("chain.requests_per_sec", 10)

	v.SetDefault("watcher.window_size", 50)
	v.SetDefault("watcher.poll_interval", time.Second)
	v.SetDefault("watcher.max_attempts", 120)
	v.SetDefault("watcher.transient_max_interval", 10*time.Second)
	v.SetDefault("watcher.commitment", string(chain.CommitmentConfirmed))
	v.SetDefault("watcher.max_lines_per_container", 512)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.redis_address", "localhost:6379")
	v.SetDefault("cache.redis_prefix", "compwatch:")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.jwt_secret", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9091)

	v.SetDefault("log.level", "info")
}

// Validate checks cross-field invariants before anything connects out.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if !chain.CommitmentLevel(c.Watcher.Commitment).Valid() {
		return fmt.Errorf("watcher.commitment %q is not one of processed, confirmed, finalized", c.Watcher.Commitment)
	}
	if c.Watcher.MaxAttempts <= 0 {
		return fmt.Errorf("watcher.max_attempts must be positive")
	}
	if c.Watcher.PollInterval <= 0 {
		return fmt.Errorf("watcher.poll_interval must be positive")
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend %q is not one of memory, redis", c.Cache.Backend)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	return nil
}
