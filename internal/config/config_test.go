package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// TestLoadDefaults tests that default configuration values are loaded correctly.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	// Test Server defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected default server host '0.0.0.0', got '%s'", cfg.Server.Host)
	}
	if cfg.Server.Port != 8097 {
		t.Errorf("Expected default server port 8097, got %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected default shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Debug != false {
		t.Errorf("Expected default debug false, got %v", cfg.Server.Debug)
	}

	// Test Redis defaults
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Expected default redis addr 'localhost:6379', got '%s'", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("Expected default redis db 0, got %d", cfg.Redis.DB)
	}

	// Test Catalog defaults
	if cfg.Catalog.Path != "catalog.yaml" {
		t.Errorf("Expected default catalog path 'catalog.yaml', got '%s'", cfg.Catalog.Path)
	}

	// Test Provisioner defaults
	if cfg.Provisioner.ReconcileInterval != 2*time.Second {
		t.Errorf("Expected default reconcile interval 2s, got %v", cfg.Provisioner.ReconcileInterval)
	}
	if cfg.Provisioner.StepTimeout != 10*time.Minute {
		t.Errorf("Expected default step timeout 10m, got %v", cfg.Provisioner.StepTimeout)
	}
	if cfg.Provisioner.RetainStopped != time.Hour {
		t.Errorf("Expected default retain_stopped 1h, got %v", cfg.Provisioner.RetainStopped)
	}
	if cfg.Provisioner.ArtifactDir != "/run/ozwald/artifacts" {
		t.Errorf("Expected default artifact dir '/run/ozwald/artifacts', got '%s'", cfg.Provisioner.ArtifactDir)
	}
	if cfg.Provisioner.ArtifactTTL != 5*time.Minute {
		t.Errorf("Expected default artifact ttl 5m, got %v", cfg.Provisioner.ArtifactTTL)
	}
	if cfg.Provisioner.FootprintData != "footprints.yaml" {
		t.Errorf("Expected default footprint data 'footprints.yaml', got '%s'", cfg.Provisioner.FootprintData)
	}
	if cfg.Provisioner.FootprintRunTime != 30*time.Second {
		t.Errorf("Expected default footprint run time 30s, got %v", cfg.Provisioner.FootprintRunTime)
	}
	if cfg.Provisioner.FootprintLogTTL != 48*time.Hour {
		t.Errorf("Expected default footprint log TTL 48h, got %v", cfg.Provisioner.FootprintLogTTL)
	}
	if cfg.Provisioner.DockerSocket != "unix:///var/run/docker.sock" {
		t.Errorf("Expected default docker socket 'unix:///var/run/docker.sock', got '%s'", cfg.Provisioner.DockerSocket)
	}

	// Test Security defaults
	if cfg.Security.RateLimit != 100 {
		t.Errorf("Expected default rate limit 100, got %d", cfg.Security.RateLimit)
	}
	if len(cfg.Security.AllowedOrigins) != 1 || cfg.Security.AllowedOrigins[0] != "*" {
		t.Errorf("Expected default allowed origins ['*'], got %v", cfg.Security.AllowedOrigins)
	}
	if cfg.Security.AuthEnabled != false {
		t.Errorf("Expected default auth_enabled false, got %v", cfg.Security.AuthEnabled)
	}
	if cfg.Security.JWTSecret != "change-me-in-production" {
		t.Errorf("Expected default jwt_secret 'change-me-in-production', got '%s'", cfg.Security.JWTSecret)
	}
	if cfg.Security.JWTExpiration != 24*time.Hour {
		t.Errorf("Expected default jwt expiration 24h, got %v", cfg.Security.JWTExpiration)
	}
}

// TestValidation tests the configuration validation logic.
func TestValidation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8097},
			Redis:   RedisConfig{Addr: "localhost:6379"},
			Catalog: CatalogConfig{Path: "catalog.yaml"},
			Provisioner: ProvisionerConfig{
				StepTimeout: 10 * time.Minute,
			},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
		errMsg    string
	}{
		{
			name:      "valid configuration",
			mutate:    func(*Config) {},
			expectErr: false,
		},
		{
			name:      "invalid port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			expectErr: true,
			errMsg:    "invalid server port",
		},
		{
			name:      "invalid port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			expectErr: true,
			errMsg:    "invalid server port",
		},
		{
			name:      "missing redis addr",
			mutate:    func(c *Config) { c.Redis.Addr = "" },
			expectErr: true,
			errMsg:    "redis addr is required",
		},
		{
			name:      "missing catalog path",
			mutate:    func(c *Config) { c.Catalog.Path = "" },
			expectErr: true,
			errMsg:    "catalog path is required",
		},
		{
			name:      "non-positive step timeout",
			mutate:    func(c *Config) { c.Provisioner.StepTimeout = 0 },
			expectErr: true,
			errMsg:    "step_timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.expectErr {
				if err == nil {
					t.Errorf("Expected error containing '%s', got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
			}
		})
	}
}

// TestEnvironmentVariableOverride tests that environment variables override config values.
func TestEnvironmentVariableOverride(t *testing.T) {
	// Save original env vars
	originalPort := os.Getenv("OZ_SERVER_PORT")
	originalHost := os.Getenv("OZ_PROVISIONER_HOST")
	originalDebug := os.Getenv("OZ_SERVER_DEBUG")

	// Set test env vars
	os.Setenv("OZ_SERVER_PORT", "9999")
	os.Setenv("OZ_PROVISIONER_HOST", "gpu-01")
	os.Setenv("OZ_SERVER_DEBUG", "true")

	// Cleanup after test
	defer func() {
		if originalPort != "" {
			os.Setenv("OZ_SERVER_PORT", originalPort)
		} else {
			os.Unsetenv("OZ_SERVER_PORT")
		}
		if originalHost != "" {
			os.Setenv("OZ_PROVISIONER_HOST", originalHost)
		} else {
			os.Unsetenv("OZ_PROVISIONER_HOST")
		}
		if originalDebug != "" {
			os.Setenv("OZ_SERVER_DEBUG", originalDebug)
		} else {
			os.Unsetenv("OZ_SERVER_DEBUG")
		}
	}()

	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999 from environment, got %d", cfg.Server.Port)
	}
	if cfg.Provisioner.Host != "gpu-01" {
		t.Errorf("Expected provisioner host 'gpu-01' from environment, got '%s'", cfg.Provisioner.Host)
	}
	if cfg.Server.Debug != true {
		t.Errorf("Expected debug true from environment, got %v", cfg.Server.Debug)
	}
}

// TestGet tests the global config getter.
func TestGet(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	retrieved := Get()
	if retrieved == nil {
		t.Error("Get() returned nil")
		return
	}

	if retrieved.Server.Port != 8097 {
		t.Errorf("Expected port 8097 from Get(), got %d", retrieved.Server.Port)
	}
}
