package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/application/dispatcher"
	"github.com/garyjia/tutor-matching/internal/application/service"
	"github.com/garyjia/tutor-matching/internal/infrastructure/worker"
	"github.com/garyjia/tutor-matching/internal/report"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	store      *StoreBundle
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle
	exporter   *report.PipelineExporter
	workers    *worker.Manager

	mu     sync.Mutex
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start initializes the store, dispatcher, service and workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	var runCtx context.Context
	runCtx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	store, err := ProvideStore(runCtx, &c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize entity store: %w", err)
	}
	c.store = store
	c.logger.Info("Entity store initialized", zap.String("driver", c.config.Database.Driver))

	if c.dispatcher, err = ProvideDispatcher(&c.config.Lark, c.logger); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	if c.services, err = ProvideService(c.store, c.config, c.logger); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.exporter = report.NewPipelineExporter(c.services.Workflow, c.logger)

	c.workers, err = ProvideWorkers(&WorkerDeps{
		Outbox:     c.store.Repos.Outbox,
		Dispatcher: c.dispatcher,
		Services:   c.services,
		Config:     c.config,
		Logger:     c.logger,
	})
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	if err := c.workers.StartAll(runCtx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to start workers: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close stops workers, flushes buffered events, closes the dispatcher and then the database
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("container already closed")
	}
	c.logger.Info("Closing container")

	errs := c.teardown()
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errs[0])
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() []error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	if c.services != nil && c.services.Hook.Buffered() > 0 {
		if _, err := c.services.Hook.Flush(context.Background()); err != nil {
			c.logger.Warn("Buffered events lost on shutdown",
				zap.Int("buffered", c.services.Hook.Buffered()), zap.Error(err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.store != nil && c.store.DB != nil {
		if err := c.store.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	c.store = nil
	return errs
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports "ok" or a problem for each component
func (c *Container) Health(ctx context.Context) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := map[string]string{
		"database":   "not initialized",
		"dispatcher": "not initialized",
		"workers":    "not initialized",
		"outbox":     "not initialized",
	}

	if c.store != nil {
		out["database"] = "ok"
		if c.store.DB != nil {
			if err := c.store.DB.PingContext(ctx); err != nil {
				out["database"] = fmt.Sprintf("ping failed: %v", err)
			}
		}
	}
	if c.dispatcher != nil {
		out["dispatcher"] = "ok"
	}
	if c.workers != nil {
		out["workers"] = "ok"
		if !c.workers.IsRunning() {
			out["workers"] = "stopped"
		}
	}
	if c.services != nil {
		out["outbox"] = "ok"
		if n := c.services.Hook.Buffered(); n > 0 {
			out["outbox"] = fmt.Sprintf("%d events waiting to be appended", n)
		}
	}
	return out
}

// Service returns the workflow service
func (c *Container) Service() service.WorkflowService {
	if c.services == nil {
		return nil
	}
	return c.services.Workflow
}

// Exporter returns the pipeline report exporter
func (c *Container) Exporter() *report.PipelineExporter {
	return c.exporter
}

// Dispatcher returns the event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Workers returns the worker manager
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration
func (c *Container) Config() *Config {
	return c.config
}
