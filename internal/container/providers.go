package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/application/dispatcher"
	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/application/service"
	appwf "github.com/garyjia/tutor-matching/internal/application/workflow"
	infraLark "github.com/garyjia/tutor-matching/internal/infrastructure/external/lark"
	"github.com/garyjia/tutor-matching/internal/infrastructure/persistence/memory"
	"github.com/garyjia/tutor-matching/internal/infrastructure/persistence/repository"
	"github.com/garyjia/tutor-matching/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/tutor-matching/internal/infrastructure/worker"
	"github.com/garyjia/tutor-matching/internal/notification"
	"github.com/garyjia/tutor-matching/pkg/database"
	"github.com/garyjia/tutor-matching/pkg/logger"
)

// StoreBundle holds the entity store behind the service
type StoreBundle struct {
	Repos service.Repositories
	Tx    port.TransactionManager
	// DB is nil for the memory driver
	DB *database.DB
}

// ProvideStore opens the configured entity store
func ProvideStore(ctx context.Context, cfg *DatabaseConfig, log *zap.Logger) (*StoreBundle, error) {
	if cfg.Driver == DriverMemory {
		store := memory.NewStore()
		log.Info("Using in-memory entity store")
		return &StoreBundle{
			Repos: service.Repositories{
				Requirements: store.Requirements(),
				Associations: store.Associations(),
				Demos:        store.Demos(),
				Classes:      store.Classes(),
				Outbox:       store.Outbox(),
			},
			Tx: store,
		}, nil
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, log)
	if err != nil {
		return nil, err
	}

	if cfg.Migrate {
		migrator, err := database.NewMigrator(db, log)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := migrator.Up(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &StoreBundle{
		Repos: service.Repositories{
			Requirements: repository.NewRequirementRepository(db.DB, log),
			Associations: repository.NewAssociationRepository(db.DB, log),
			Demos:        repository.NewDemoRepository(db.DB, log),
			Classes:      repository.NewClassRepository(db.DB, log),
			Outbox:       repository.NewOutboxRepository(db.DB, log),
		},
		Tx: sqlite.NewDB(db.DB, log),
		DB: db,
	}, nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the notifiers
func ProvideDispatcher(cfg *LarkConfig, log *zap.Logger) (dispatcher.Dispatcher, error) {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(logger.KV(log)))

	var chat *notification.ChatNotifier
	if cfg.Enabled {
		sdk := infraLark.NewSDKClient(infraLark.Config{
			AppID:     cfg.AppID,
			AppSecret: cfg.AppSecret,
			BaseURL:   cfg.BaseURL,
		}, log)
		chat = notification.NewChatNotifier(infraLark.NewMessenger(sdk, log), notification.ChatConfig{
			ReceiveIDType: cfg.ReceiveIDType,
			ReceiveID:     cfg.ChatID,
			EventTypes:    cfg.EventTypes,
		}, log)
		log.Info("Lark chat notifier enabled", zap.String("receive_id_type", cfg.ReceiveIDType))
	}

	notification.Register(d, notification.NewLogNotifier(log), chat)
	return d, nil
}

// ServiceBundle holds the workflow service and its outbox hook
type ServiceBundle struct {
	Workflow service.WorkflowService
	Hook     *service.OutboxHook
}

// ProvideService creates the workflow service
func ProvideService(store *StoreBundle, cfg *Config, log *zap.Logger) (*ServiceBundle, error) {
	if store == nil {
		return nil, fmt.Errorf("entity store is required")
	}
	kv := logger.KV(log)
	hook := service.NewOutboxHook(store.Repos.Outbox, cfg.Outbox.BufferSize, kv)
	svc := service.NewWorkflowService(store.Repos, store.Tx, hook, kv,
		service.WithGuardConfig(appwf.GuardConfig{
			MaxRetries:   cfg.Workflow.MaxRetries,
			RetryBackoff: cfg.Workflow.RetryBackoff,
		}),
	)
	return &ServiceBundle{Workflow: svc, Hook: hook}, nil
}

// WorkerDeps holds what the background workers consume
type WorkerDeps struct {
	Outbox     port.OutboxRepository
	Dispatcher dispatcher.Dispatcher
	Services   *ServiceBundle
	Config     *Config
	Logger     *zap.Logger
}

// ProvideWorkers creates the worker manager with the relay and schedule workers
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps.Services == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("services and dispatcher are required")
	}
	cfg := deps.Config

	m := worker.NewManager(deps.Logger)
	m.Register(worker.NewOutboxRelayWorker(worker.RelayConfig{
		PollInterval:   cfg.Outbox.PollInterval,
		BatchSize:      cfg.Outbox.BatchSize,
		MaxAttempts:    cfg.Outbox.MaxAttempts,
		RetryBaseDelay: cfg.Outbox.RetryBaseDelay,
		MaxRetryDelay:  cfg.Outbox.MaxRetryDelay,
	}, deps.Outbox, deps.Dispatcher, deps.Services.Hook, deps.Logger))
	m.Register(worker.NewClassScheduleWorker(worker.ClassScheduleConfig{
		PollInterval: cfg.Classes.PollInterval,
		BatchSize:    cfg.Classes.BatchSize,
	}, deps.Services.Workflow, deps.Logger))
	return m, nil
}
