package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	testJWTSecret    = "test-secret-key-at-least-32-chars!"
	testIntegrityKey = "integrity-key-at-least-32-characters"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// validConfig returns defaults with the required secrets filled in.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = testJWTSecret
	cfg.Security.Integrity.Key = testIntegrityKey
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
    access_token_ttl: 5
    refresh_token_ttl_days: 7
  integrity:
    key: "integrity-key-at-least-32-characters"
  rate_limit:
    enabled: true
    general:
      max_requests: 50
      window_seconds: 60
    auth:
      max_requests: 5
      window_seconds: 60
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Security.JWT.AccessTTL() != 5*time.Minute {
		t.Errorf("AccessTTL() = %v, want 5m", cfg.Security.JWT.AccessTTL())
	}
	if cfg.Security.JWT.RefreshTTL() != 7*24*time.Hour {
		t.Errorf("RefreshTTL() = %v, want 168h", cfg.Security.JWT.RefreshTTL())
	}
	if cfg.Security.RateLimit.General.MaxRequests != 50 {
		t.Errorf("RateLimit.General.MaxRequests = %d, want 50", cfg.Security.RateLimit.General.MaxRequests)
	}
	if cfg.Security.RateLimit.Auth.Window() != time.Minute {
		t.Errorf("RateLimit.Auth.Window() = %v, want 1m", cfg.Security.RateLimit.Auth.Window())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_SecretsFromEnvironment(t *testing.T) {
	t.Setenv("GRAYLOGIC_JWT_SECRET", testJWTSecret)
	t.Setenv("GRAYLOGIC_INTEGRITY_KEY", testIntegrityKey)

	cfg, err := Load(writeConfig(t, "site:\n  id: env-site\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.JWT.Secret != testJWTSecret {
		t.Errorf("JWT.Secret = %q, want env value", cfg.Security.JWT.Secret)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, "site:\n  id: \"\"\n"))
	if err == nil {
		t.Error("Load() expected validation error, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: "jwt.secret is required"},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: "at least 32"},
		{name: "zero access TTL", mutate: func(c *Config) { c.Security.JWT.AccessTokenTTL = 0 }, wantErr: "access_token_ttl"},
		{name: "zero refresh TTL", mutate: func(c *Config) { c.Security.JWT.RefreshTokenTTLDays = 0 }, wantErr: "refresh_token_ttl_days"},
		{name: "short integrity key", mutate: func(c *Config) { c.Security.Integrity.Key = "abc" }, wantErr: "integrity.key"},
		{
			name:    "auth window without requests",
			mutate:  func(c *Config) { c.Security.RateLimit.Auth.MaxRequests = 0 },
			wantErr: "rate_limit.auth",
		},
		{
			name:   "rate limit disabled skips window checks",
			mutate: func(c *Config) { c.Security.RateLimit = RateLimitConfig{Enabled: false} },
		},
		{
			name:    "cleanup probability out of range",
			mutate:  func(c *Config) { c.Security.RateLimit.CleanupProbability = 1.5 },
			wantErr: "cleanup_probability",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_API_HOST", "192.168.1.1")
	t.Setenv("GRAYLOGIC_API_PORT", "9443")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_JWT_SECRET", "jwt-secret")
	t.Setenv("GRAYLOGIC_INTEGRITY_KEY", "integrity")
	t.Setenv("GRAYLOGIC_BIOMETRIC_KEY", "biokey")
	t.Setenv("GRAYLOGIC_BIOMETRIC_PASSPHRASE", "biopass")
	t.Setenv("GRAYLOGIC_OWNER_PASSWORD", "ownerpass")

	applyEnvOverrides(cfg)

	checks := []struct {
		name, got, want string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
		{"Security.Integrity.Key", cfg.Security.Integrity.Key, "integrity"},
		{"Security.Biometric.Key", cfg.Security.Biometric.Key, "biokey"},
		{"Security.Biometric.Passphrase", cfg.Security.Biometric.Passphrase, "biopass"},
		{"Bootstrap.OwnerPassword", cfg.Bootstrap.OwnerPassword, "ownerpass"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if cfg.API.Port != 9443 {
		t.Errorf("API.Port = %d, want 9443", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Security.RateLimit.Auth.MaxRequests >= cfg.Security.RateLimit.General.MaxRequests {
		t.Error("auth routes should have a stricter window than general routes")
	}
	if !cfg.Security.JWT.RevocationEnabled {
		t.Error("refresh token revocation should be on by default")
	}
}
