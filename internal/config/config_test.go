package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

const testSecret = "this-is-a-very-long-token-secret-for-testing-32+"

// validEnv sets the minimum required env vars for a valid config.
func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "postgres://u:p@localhost:5432/testdb")
	t.Setenv("AUTH_TOKEN_SECRET", testSecret)
}

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

const validYAML = `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: "5s"

database:
  driver: "postgres"
  dsn: "postgres://u:p@localhost:5432/testdb"
  max_conns: 10
  min_conns: 2

auth:
  token_secret: "this-is-a-very-long-token-secret-for-testing-32+"
  token_issuer: "firm-sso"

log:
  level: "debug"
  format: "text"

audit:
  retention_days: 90
  search_window_days: 14

jobs:
  auto_transition_batch: 25
  rfi_expiry_window_days: 5
  system_user_id: "6f1c7d36-2a0e-4c61-9a53-0b1b2d3c4e5f"
  system_role: "manager"

notify:
  nats_url: "nats://localhost:4222"
  subject_prefix: "firm.notify"
  max_in_flight: 4
`

func TestLoad_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, validYAML)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server.host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("server.read_timeout = %v, want %v", cfg.Server.ReadTimeout, 5*time.Second)
	}
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("server.write_timeout = %v, want default 30s", cfg.Server.WriteTimeout)
	}

	if cfg.Database.MaxConns != 10 {
		t.Errorf("database.max_conns = %d, want 10", cfg.Database.MaxConns)
	}
	if cfg.Auth.TokenIssuer != "firm-sso" {
		t.Errorf("auth.token_issuer = %q", cfg.Auth.TokenIssuer)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}

	if cfg.Audit.RetentionDays != 90 {
		t.Errorf("audit.retention_days = %d, want 90", cfg.Audit.RetentionDays)
	}
	if cfg.Audit.SearchWindowDays != 14 {
		t.Errorf("audit.search_window_days = %d, want 14", cfg.Audit.SearchWindowDays)
	}
	if cfg.Audit.DefaultPageSize != 50 {
		t.Errorf("audit.default_page_size = %d, want default 50", cfg.Audit.DefaultPageSize)
	}

	if cfg.Jobs.AutoTransitionBatch != 25 {
		t.Errorf("jobs.auto_transition_batch = %d, want 25", cfg.Jobs.AutoTransitionBatch)
	}
	sys := cfg.Jobs.SystemUser()
	if sys.ID != uuid.MustParse("6f1c7d36-2a0e-4c61-9a53-0b1b2d3c4e5f") || sys.Role != domain.RoleManager {
		t.Errorf("jobs.SystemUser() = %+v", sys)
	}

	if cfg.Notify.MaxInFlight != 4 || cfg.Notify.SubjectPrefix != "firm.notify" {
		t.Errorf("notify = %+v", cfg.Notify)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_ENVOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, validYAML)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVER_PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("AUDIT_RETENTION_DAYS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("server.port = %d, want 3000 (ENV override)", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want %q (ENV override)", cfg.Log.Level, "warn")
	}
	if cfg.Audit.RetentionDays != 30 {
		t.Errorf("audit.retention_days = %d, want 30 (ENV override)", cfg.Audit.RetentionDays)
	}
}

func TestLoad_NoFile_ENVOnly(t *testing.T) {
	validEnv(t)

	t.Setenv("CONFIG_PATH", "")
	origDir, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	_ = os.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080 (default)", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("database.driver = %q, want postgres (default)", cfg.Database.Driver)
	}
	if cfg.Audit.SearchWindowDays != 7 {
		t.Errorf("audit.search_window_days = %d, want 7 (default)", cfg.Audit.SearchWindowDays)
	}
	if cfg.Jobs.SystemUser().Role != domain.RolePartner {
		t.Errorf("jobs.system_role default = %q", cfg.Jobs.SystemRole)
	}
}

func TestLoad_ExplicitPathNotFound(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, `{{{invalid yaml`)
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"short token secret", func(c *Config) { c.Auth.TokenSecret = "short" }, true},
		{"empty token secret", func(c *Config) { c.Auth.TokenSecret = "" }, true},
		{"postgres without dsn", func(c *Config) { c.Database.DSN = "" }, true},
		{"memory without dsn", func(c *Config) { c.Database.Driver = DriverMemory; c.Database.DSN = "" }, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, true},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }, true},
		{"rate limit off", func(c *Config) { c.Server.RateLimit = 0 }, false},
		{"zero retention", func(c *Config) { c.Audit.RetentionDays = 0 }, true},
		{"zero search window", func(c *Config) { c.Audit.SearchWindowDays = 0 }, true},
		{"page size above max", func(c *Config) { c.Audit.DefaultPageSize = 201 }, true},
		{"page size at max", func(c *Config) { c.Audit.DefaultPageSize = 200 }, false},
		{"zero batch", func(c *Config) { c.Jobs.AutoTransitionBatch = 0 }, true},
		{"negative expiry window", func(c *Config) { c.Jobs.RFIExpiryWindowDays = -1 }, true},
		{"bad system user", func(c *Config) { c.Jobs.SystemUserID = "system" }, true},
		{"bad system role", func(c *Config) { c.Jobs.SystemRole = "admin" }, true},
		{"zero in flight", func(c *Config) { c.Notify.MaxInFlight = 0 }, true},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, true},
		{"relative path with metrics off", func(c *Config) { c.Metrics.Enabled = false; c.Metrics.Path = "metrics" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// validConfig returns a Config that passes all validation checks.
func validConfig() Config {
	return Config{
		Database: DatabaseConfig{Driver: DriverPostgres, DSN: "postgres://u:p@localhost:5432/testdb"},
		Auth:     AuthConfig{TokenSecret: testSecret, TokenIssuer: "engagement-auth"},
		Audit:    AuditConfig{RetentionDays: 365, SearchWindowDays: 7, DefaultPageSize: 50, HistoryLimit: 100},
		Jobs: JobsConfig{
			AutoTransitionBatch: 100,
			RFIExpiryWindowDays: 3,
			SystemUserID:        "00000000-0000-0000-0000-000000000001",
			SystemRole:          "partner",
		},
		Notify:  NotifyConfig{MaxInFlight: 16, SendTimeout: 10 * time.Second},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func TestLoadFile_ExplicitPathWinsOverEnv(t *testing.T) {
	path := writeYAML(t, t.TempDir(), validYAML)
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
}

func TestLoadFile_MemoryDriverNeedsNoDSN(t *testing.T) {
	path := writeYAML(t, t.TempDir(), `
database:
  driver: memory
auth:
  token_secret: "this-is-a-very-long-token-secret-for-testing-32+"
`)
	t.Setenv("DATABASE_DSN", "")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("database.driver = %q, want memory", cfg.Database.Driver)
	}
}
