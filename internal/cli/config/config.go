package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WINDMILL_SERVER_PORT.
const EnvPrefix = "WINDMILL"

// Config represents the windmill configuration
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Inference InferenceConfig `mapstructure:"inference"`
	Merge     MergeConfig     `mapstructure:"merge"`
	Server    ServerConfig    `mapstructure:"server"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// InferenceConfig controls parameter type inference
type InferenceConfig struct {
	// FromDefaults types undocumented parameters after their default value.
	FromDefaults bool `mapstructure:"from_defaults"`
}

// MergeConfig controls inheritance merging
type MergeConfig struct {
	// Root is the qualified name of the class where the ancestor walk
	// stops. Empty walks the whole chain.
	Root string `mapstructure:"root"`
}

// ServerConfig represents server configuration. DebugAddr serves pprof on a
// separate listener; empty disables it.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	Host            string          `mapstructure:"host"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	TLS             TLSConfig       `mapstructure:"tls"`
	Auth            AuthConfig      `mapstructure:"auth"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	DebugAddr       string          `mapstructure:"debug_addr"`
}

// TLSConfig enables HTTPS when both files are set.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// Enabled reports whether TLS is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" || t.KeyFile != ""
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig represents API token configuration. An empty secret disables auth.
type AuthConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig throttles API clients. Zero requests disables throttling.
// The limiter shares the cache backend.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// CacheConfig represents descriptor cache configuration
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig represents redis connection configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig represents snapshot store configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Supported backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"

	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Load loads the configuration from windmill.yml or windmill.yaml in the
// working directory
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads the configuration from path, or from the working directory
// when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("windmill")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Enable environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("inference.from_defaults", false)
	v.SetDefault("merge.root", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.debug_addr", "")
	v.SetDefault("server.auth.secret", "")
	v.SetDefault("server.auth.ttl", time.Hour)
	v.SetDefault("server.rate_limit.requests", 0)
	v.SetDefault("server.rate_limit.window", time.Minute)
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "")
}

// DatabaseDSN returns DATABASE_URL when set, else database.dsn
func (c *Config) DatabaseDSN() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	return c.Database.DSN
}

// GetDatabaseDSN returns the snapshot store DSN from the environment or the
// config file in the working directory
func GetDatabaseDSN() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	cfg, err := Load()
	if err != nil {
		return ""
	}

	return cfg.DatabaseDSN()
}

// FindConfigFile walks up from the working directory looking for
// windmill.yml or windmill.yaml
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range []string{"windmill.yml", "windmill.yaml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		// Move up one directory
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no windmill.yml found")
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got: %s", cfg.Log.Level)
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Server.TLS.Enabled() && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls requires both cert_file and key_file")
	}
	if cfg.Server.Auth.Secret != "" && cfg.Server.Auth.TTL <= 0 {
		return fmt.Errorf("server.auth.ttl must be positive when a secret is set")
	}
	if cfg.Server.RateLimit.Requests < 0 {
		return fmt.Errorf("server.rate_limit.requests must not be negative")
	}
	if cfg.Server.RateLimit.Requests > 0 && cfg.Server.RateLimit.Window <= 0 {
		return fmt.Errorf("server.rate_limit.window must be positive when requests is set")
	}

	switch cfg.Cache.Backend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got: %s", CacheMemory, CacheRedis, cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == CacheRedis && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required for the redis backend")
	}

	switch cfg.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got: %s", DriverSQLite, DriverPostgres, cfg.Database.Driver)
	}
	return nil
}
