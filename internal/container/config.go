// Package container wires the tutor matching workflow: storage, dispatcher
// and notifiers, the workflow service, and the background workers.
package container

import (
	"fmt"
	"time"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds all configuration for the Container
type Config struct {
	Database DatabaseConfig
	Workflow WorkflowConfig
	Outbox   OutboxConfig
	Classes  ClassesConfig
	Lark     LarkConfig
}

// DatabaseConfig holds entity store settings
type DatabaseConfig struct {
	// Driver is sqlite or memory
	Driver string

	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Migrate applies the embedded migrations on start
	Migrate bool
}

// WorkflowConfig holds the concurrency guard settings
type WorkflowConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// OutboxConfig holds event delivery settings
type OutboxConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	MaxRetryDelay  time.Duration
	// BufferSize bounds events kept in memory after a failed append
	BufferSize int
}

// ClassesConfig holds class schedule worker settings
type ClassesConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// LarkConfig holds the admin chat notifier settings
type LarkConfig struct {
	Enabled       bool
	AppID         string
	AppSecret     string
	BaseURL       string
	ReceiveIDType string
	ChatID        string
	EventTypes    []string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "data/tutor_matching.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			Migrate:         true,
		},
		Workflow: WorkflowConfig{
			MaxRetries:   3,
			RetryBackoff: 10 * time.Millisecond,
		},
		Outbox: OutboxConfig{
			PollInterval:   2 * time.Second,
			BatchSize:      50,
			MaxAttempts:    8,
			RetryBaseDelay: 5 * time.Second,
			MaxRetryDelay:  30 * time.Minute,
			BufferSize:     1000,
		},
		Classes: ClassesConfig{
			PollInterval: time.Minute,
			BatchSize:    100,
		},
		Lark: LarkConfig{
			ReceiveIDType: "chat_id",
		},
	}
}

// Validate rejects configurations the container cannot start with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Database.Driver)
	}

	if c.Workflow.MaxRetries < 0 {
		return fmt.Errorf("workflow.max_retries must not be negative")
	}
	if c.Outbox.PollInterval <= 0 || c.Classes.PollInterval <= 0 {
		return fmt.Errorf("worker poll intervals must be positive")
	}
	if c.Outbox.MaxAttempts < 1 {
		return fmt.Errorf("outbox.max_attempts must be at least 1")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
		}
		if c.Lark.ChatID == "" {
			return fmt.Errorf("lark.chat_id is required when lark is enabled")
		}
	}
	return nil
}
