// Package config provides configuration management for Ozwald.
//
// Configuration is loaded in the following order (later sources override
// earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./ozwald.yaml, ~/.ozwald/ozwald.yaml, /etc/ozwald/ozwald.yaml)
//  3. .env files
//  4. Environment variables (OZ_ prefix)
//
// Environment variables use the OZ_ prefix and underscores for nested
// keys, for example:
//   - OZ_SERVER_PORT=8097
//   - OZ_REDIS_ADDR=localhost:6379
//   - OZ_PROVISIONER_HOST=gpu-01
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for Ozwald.
type Config struct {
	// Server contains HTTP API server settings.
	Server ServerConfig `mapstructure:"server"`

	// Redis contains connection settings for the shared state backend.
	Redis RedisConfig `mapstructure:"redis"`

	// Catalog contains catalog file settings.
	Catalog CatalogConfig `mapstructure:"catalog"`

	// Provisioner contains reconciliation controller settings.
	Provisioner ProvisionerConfig `mapstructure:"provisioner"`

	// Security contains API security settings.
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address.
	Host string `mapstructure:"host"`

	// Port is the server listen port.
	Port int `mapstructure:"port"`

	// ShutdownTimeout is the maximum duration for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug enables debug logging.
	Debug bool `mapstructure:"debug"`
}

// RedisConfig contains connection settings for the redis instance that
// backs the active-state store, the secrets store, and the footprint
// request queue.
type RedisConfig struct {
	// Addr is the redis server address (host:port).
	Addr string `mapstructure:"addr"`

	// Password for redis authentication, empty for none.
	Password string `mapstructure:"password"`

	// DB is the redis database number.
	DB int `mapstructure:"db"`
}

// CatalogConfig locates the service catalog.
type CatalogConfig struct {
	// Path is the catalog YAML file.
	Path string `mapstructure:"path"`
}

// ProvisionerConfig contains reconciliation controller settings.
type ProvisionerConfig struct {
	// Host is the catalog host this provisioner schedules onto.
	Host string `mapstructure:"host"`

	// ReconcileInterval is the pause between reconcile loop passes.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`

	// StepTimeout bounds each blocking step (admission, secrets
	// materialization, shim start/stop). Exceeding it fails the instance.
	StepTimeout time.Duration `mapstructure:"step_timeout"`

	// RetainStopped is how long stopped instance records are kept for
	// inspection before pruning.
	RetainStopped time.Duration `mapstructure:"retain_stopped"`

	// ArtifactDir is where materialized secret artifacts live between
	// decryption and runtime handoff.
	ArtifactDir string `mapstructure:"artifact_dir"`

	// ArtifactTTL is the age past which leftover artifacts found at
	// startup are destroyed unconditionally.
	ArtifactTTL time.Duration `mapstructure:"artifact_ttl"`

	// FootprintData is the YAML file footprint estimates persist to.
	FootprintData string `mapstructure:"footprint_data"`

	// FootprintRunTime is how long a measurement instance runs before
	// its peak usage is sampled.
	FootprintRunTime time.Duration `mapstructure:"footprint_run_time"`

	// FootprintLogTTL is how long measurement run output is retained
	// for inspection.
	FootprintLogTTL time.Duration `mapstructure:"footprint_log_ttl"`

	// DockerSocket is the Docker daemon endpoint for the runtime shim.
	DockerSocket string `mapstructure:"docker_socket"`
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	// RateLimit is the maximum requests per second per client.
	RateLimit int `mapstructure:"rate_limit"`

	// AllowedOrigins are the CORS allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AuthEnabled enables JWT bearer authentication.
	AuthEnabled bool `mapstructure:"auth_enabled"`

	// JWTSecret is the secret key for signing API tokens.
	JWTSecret string `mapstructure:"jwt_secret"`

	// JWTExpiration is the token expiration duration.
	JWTExpiration time.Duration `mapstructure:"jwt_expiration"`
}

var cfg *Config

// Load reads configuration from a file and environment variables. If
// cfgFile is empty, standard locations are searched.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("ozwald")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ozwald")
		v.AddConfigPath("/etc/ozwald")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("OZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8097)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("catalog.path", "catalog.yaml")

	v.SetDefault("provisioner.reconcile_interval", "2s")
	v.SetDefault("provisioner.step_timeout", "10m")
	v.SetDefault("provisioner.retain_stopped", "1h")
	v.SetDefault("provisioner.artifact_dir", "/run/ozwald/artifacts")
	v.SetDefault("provisioner.artifact_ttl", "5m")
	v.SetDefault("provisioner.footprint_data", "footprints.yaml")
	v.SetDefault("provisioner.footprint_run_time", "30s")
	v.SetDefault("provisioner.footprint_log_ttl", "48h")
	v.SetDefault("provisioner.docker_socket", "unix:///var/run/docker.sock")

	v.SetDefault("security.rate_limit", 100)
	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.auth_enabled", false)
	v.SetDefault("security.jwt_secret", "change-me-in-production")
	v.SetDefault("security.jwt_expiration", "24h")
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}

	if cfg.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required")
	}

	if cfg.Provisioner.StepTimeout <= 0 {
		return fmt.Errorf("provisioner step_timeout must be positive")
	}

	return nil
}

// Get returns the last loaded configuration.
func Get() *Config {
	return cfg
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
