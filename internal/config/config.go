package config

import (
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Audit    AuditConfig    `yaml:"audit"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Notify   NotifyConfig   `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	CORS     CORSConfig     `yaml:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins   string `yaml:"allowed_origins"   env:"CORS_ALLOWED_ORIGINS"   env-default:"*"`
	AllowedMethods   string `yaml:"allowed_methods"   env:"CORS_ALLOWED_METHODS"   env-default:"GET,POST,PATCH,DELETE,OPTIONS"`
	AllowedHeaders   string `yaml:"allowed_headers"   env:"CORS_ALLOWED_HEADERS"   env-default:"Authorization,Content-Type,X-Request-Id"`
	AllowCredentials bool   `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"false"`
	MaxAge           int    `yaml:"max_age"           env:"CORS_MAX_AGE"           env-default:"86400"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	// RateLimit is the per-client request budget per minute; 0 disables it.
	RateLimit int `yaml:"rate_limit" env:"SERVER_RATE_LIMIT" env-default:"600"`
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseConfig holds storage settings. The memory driver keeps everything
// in process and is meant for local runs.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"             env:"DATABASE_DRIVER"             env-default:"postgres"`
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// AuthConfig holds the settings for verifying identity tokens issued by the
// authentication service.
type AuthConfig struct {
	TokenSecret string `yaml:"token_secret" env:"AUTH_TOKEN_SECRET" env-required:"true"`
	TokenIssuer string `yaml:"token_issuer" env:"AUTH_TOKEN_ISSUER" env-default:"engagement-auth"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	RetentionDays    int `yaml:"retention_days"     env:"AUDIT_RETENTION_DAYS"     env-default:"365"`
	SearchWindowDays int `yaml:"search_window_days" env:"AUDIT_SEARCH_WINDOW_DAYS" env-default:"7"`
	DefaultPageSize  int `yaml:"default_page_size"  env:"AUDIT_DEFAULT_PAGE_SIZE"  env-default:"50"`
	HistoryLimit     int `yaml:"history_limit"      env:"AUDIT_HISTORY_LIMIT"      env-default:"100"`
}

// JobsConfig holds settings of the scheduled jobs.
type JobsConfig struct {
	AutoTransitionBatch int    `yaml:"auto_transition_batch" env:"JOBS_AUTO_TRANSITION_BATCH" env-default:"100"`
	RFIExpiryWindowDays int    `yaml:"rfi_expiry_window_days" env:"JOBS_RFI_EXPIRY_WINDOW_DAYS" env-default:"3"`
	SystemUserID        string `yaml:"system_user_id"         env:"JOBS_SYSTEM_USER_ID"         env-default:"00000000-0000-0000-0000-000000000001"`
	SystemRole          string `yaml:"system_role"            env:"JOBS_SYSTEM_ROLE"            env-default:"partner"`
}

// NotifyConfig holds the notification broker settings. An empty URL logs
// notifications instead of publishing them.
type NotifyConfig struct {
	NatsURL       string        `yaml:"nats_url"       env:"NOTIFY_NATS_URL"`
	SubjectPrefix string        `yaml:"subject_prefix" env:"NOTIFY_SUBJECT_PREFIX" env-default:"engagement.notify"`
	MaxInFlight   int64         `yaml:"max_in_flight"  env:"NOTIFY_MAX_IN_FLIGHT"  env-default:"16"`
	SendTimeout   time.Duration `yaml:"send_timeout"   env:"NOTIFY_SEND_TIMEOUT"   env-default:"10s"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path"    env:"METRICS_PATH"    env-default:"/metrics"`
}
