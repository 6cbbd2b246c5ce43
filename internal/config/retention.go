package config

import (
	"fmt"
	"os"
	"strconv"
)

// EventRetentionConfig governs pruning of stored run events. The store
// prunes at the end of each run when cleanup is enabled.
type EventRetentionConfig struct {
	// RetentionDays is how long events are kept
	// Default: 30, Range: 1-365
	RetentionDays int `yaml:"retention_days"`

	// MaxEvents caps the total number of stored events; oldest are
	// deleted first once the cap is reached
	// Default: 100000, Range: 1000-1000000
	MaxEvents int `yaml:"max_events"`

	// CleanupBatchSize is the number of events deleted per statement.
	// Larger batches finish faster but hold locks longer.
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int `yaml:"cleanup_batch_size"`

	// CleanupEnabled controls end-of-run pruning
	// Default: true
	CleanupEnabled bool `yaml:"cleanup_enabled"`
}

// DefaultEventRetentionConfig returns the default retention configuration
func DefaultEventRetentionConfig() EventRetentionConfig {
	return EventRetentionConfig{
		RetentionDays:    30,
		MaxEvents:        100000,
		CleanupBatchSize: 1000,
		CleanupEnabled:   true,
	}
}

// EventRetentionFromEnv builds a retention config from LINTFIX_EVENT_*
// environment variables, falling back to defaults.
func EventRetentionFromEnv() (EventRetentionConfig, error) {
	cfg := DefaultEventRetentionConfig()

	if err := parseEnvInt("LINTFIX_EVENT_RETENTION_DAYS", &cfg.RetentionDays); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("LINTFIX_EVENT_MAX_EVENTS", &cfg.MaxEvents); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("LINTFIX_EVENT_CLEANUP_BATCH_SIZE", &cfg.CleanupBatchSize); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("LINTFIX_EVENT_CLEANUP_ENABLED", &cfg.CleanupEnabled); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid event retention configuration from environment: %w", err)
	}
	return cfg, nil
}

// Validate checks if the retention configuration has valid values
func (c EventRetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}
	if c.MaxEvents < 1000 || c.MaxEvents > 1000000 {
		return fmt.Errorf("max_events must be between 1000 and 1000000 (got %d)", c.MaxEvents)
	}
	if c.CleanupBatchSize < 100 || c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size must be between 100 and 10000 (got %d)", c.CleanupBatchSize)
	}
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
