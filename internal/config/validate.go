package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if len(c.Auth.TokenSecret) < 32 {
		return fmt.Errorf("auth.token_secret must be at least 32 characters (got %d)", len(c.Auth.TokenSecret))
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be >= 0 (got %d)", c.Server.RateLimit)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q (got %q)", DriverPostgres, DriverMemory, c.Database.Driver)
	}

	if err := c.Audit.validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if err := c.Jobs.validate(); err != nil {
		return fmt.Errorf("jobs: %w", err)
	}
	if c.Notify.MaxInFlight <= 0 {
		return fmt.Errorf("notify.max_in_flight must be > 0 (got %d)", c.Notify.MaxInFlight)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with / (got %q)", c.Metrics.Path)
	}

	return nil
}

func (a *AuditConfig) validate() error {
	if a.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be > 0 (got %d)", a.RetentionDays)
	}
	if a.SearchWindowDays <= 0 {
		return fmt.Errorf("search_window_days must be > 0 (got %d)", a.SearchWindowDays)
	}
	if a.DefaultPageSize < 1 || a.DefaultPageSize > 200 {
		return fmt.Errorf("default_page_size must be between 1 and 200 (got %d)", a.DefaultPageSize)
	}
	return nil
}

func (j *JobsConfig) validate() error {
	if j.AutoTransitionBatch <= 0 {
		return fmt.Errorf("auto_transition_batch must be > 0 (got %d)", j.AutoTransitionBatch)
	}
	if j.RFIExpiryWindowDays < 0 {
		return fmt.Errorf("rfi_expiry_window_days must be >= 0 (got %d)", j.RFIExpiryWindowDays)
	}
	if _, err := uuid.Parse(j.SystemUserID); err != nil {
		return fmt.Errorf("system_user_id: %w", err)
	}
	if !domain.Role(j.SystemRole).IsValid() {
		return fmt.Errorf("system_role: unknown role %q", j.SystemRole)
	}
	return nil
}

// SystemUser returns the identity scheduled jobs act as.
func (j JobsConfig) SystemUser() domain.User {
	return domain.User{
		ID:   uuid.MustParse(j.SystemUserID),
		Role: domain.Role(j.SystemRole),
		Type: domain.UserTypeInternal,
	}
}
