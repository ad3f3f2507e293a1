package backend

import (
	"context"
	"fmt"
	"log/slog"

	"gastos/internal/amqp"
	"gastos/internal/identity"
	applog "gastos/internal/log"
	"gastos/internal/services"
	"gastos/internal/storage"
	"gastos/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

// CreateBackend builds the repository for config.Type and wraps it in a
// data service with the optional change bus and Google sign-in.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	repo, err := f.createRepository(config)
	if err != nil {
		return nil, err
	}

	google, err := f.createVerifier(ctx, config)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	bus := f.createBus(config)
	var publisher services.ChangePublisher
	if bus != nil {
		publisher = bus
	}

	svc := services.NewDataService(repo, google, publisher)

	f.logger.Info("Initialized data backend",
		"backend", config.Type,
		"amqp_enabled", bus != nil,
		"google_sign_in", config.GoogleClientID != "")

	return &BackendResult{
		Service: svc,
		Bus:     bus,
		Cleanup: svc.Close,
	}, nil
}

func (f *DefaultFactory) createRepository(config Config) (services.Repository, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite repository", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		if config.MemorySeedFile == "" {
			f.logger.Info("Initialized memory repository")
			return memory.New(), nil
		}
		store, err := memory.NewFromFile(config.MemorySeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to seed memory repository: %w", err)
		}
		f.logger.Info("Initialized memory repository", "seed_file", config.MemorySeedFile)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createVerifier(ctx context.Context, config Config) (identity.GoogleVerifier, error) {
	if config.GoogleClientID == "" {
		return identity.DisabledVerifier{}, nil
	}
	v, err := identity.NewIDTokenVerifier(ctx, config.GoogleClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google token verifier: %w", err)
	}
	return v, nil
}

// createBus connects to the broker. A broker that is down at startup only
// disables cross-instance updates; local subscriptions keep working.
func (f *DefaultFactory) createBus(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without change bus", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue_prefix", config.AMQPQueue,
		"origin", client.Origin())
	return client
}
