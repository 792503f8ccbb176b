package config

import (
	"github.com/garyjia/tutor-matching/internal/container"
	httpserver "github.com/garyjia/tutor-matching/internal/interfaces/http"
	"github.com/garyjia/tutor-matching/pkg/logger"
)

// ToContainerConfig converts the file-based config into the container's
// configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			Migrate:         c.Database.Migrate,
		},
		Workflow: container.WorkflowConfig{
			MaxRetries:   c.Workflow.MaxRetries,
			RetryBackoff: c.Workflow.RetryBackoff,
		},
		Outbox: container.OutboxConfig{
			PollInterval:   c.Outbox.PollInterval,
			BatchSize:      c.Outbox.BatchSize,
			MaxAttempts:    c.Outbox.MaxAttempts,
			RetryBaseDelay: c.Outbox.RetryBaseDelay,
			MaxRetryDelay:  c.Outbox.MaxRetryDelay,
			BufferSize:     c.Outbox.BufferSize,
		},
		Classes: container.ClassesConfig{
			PollInterval: c.Classes.PollInterval,
			BatchSize:    c.Classes.BatchSize,
		},
		Lark: container.LarkConfig{
			Enabled:       c.Lark.Enabled,
			AppID:         c.Lark.AppID,
			AppSecret:     c.Lark.AppSecret,
			BaseURL:       c.Lark.BaseURL,
			ReceiveIDType: c.Lark.ReceiveIDType,
			ChatID:        c.Lark.ChatID,
			EventTypes:    c.Lark.EventTypes,
		},
	}
}

// ToServerConfig converts the server section for the HTTP adapter
func (c *Config) ToServerConfig() httpserver.ServerConfig {
	return httpserver.ServerConfig{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		ReadTimeout:     c.Server.ReadTimeout,
		WriteTimeout:    c.Server.WriteTimeout,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		Mode:            c.Server.Mode,
	}
}

// ToLoggerConfig converts the logger section for pkg/logger
func (c *Config) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
	}
}
