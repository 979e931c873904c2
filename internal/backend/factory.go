package backend

import (
	"context"
	"errors"
	"fmt"

	"finassist/internal/amqp"
	"finassist/internal/log"
	"finassist/internal/storage"
	"finassist/internal/store"
	"finassist/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	dial   func(url, exchange, queue string) (*amqp.Client, error)
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		dial:   amqp.NewClient,
	}
}

// CreateBackend opens the store and, when an AMQP URL is set, the publisher.
// A broker that cannot be reached is logged and skipped.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		be  store.Backend
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		be, err = storage.NewSQLiteRepository(config.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "dsn", config.SQLiteDSN)
	case MemoryBackend:
		be = memory.New()
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if err := be.Ping(ctx); err != nil {
		_ = be.Close()
		return nil, fmt.Errorf("backend not reachable: %w", err)
	}

	var publisher *amqp.Client
	if config.AMQPURL != "" {
		publisher, err = f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			publisher = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	cleanup := func() error {
		var errs []error
		if publisher != nil {
			errs = append(errs, publisher.Close())
		}
		errs = append(errs, be.Close())
		return errors.Join(errs...)
	}

	return &BackendResult{
		Backend:   be,
		Publisher: publisher,
		Cleanup:   cleanup,
	}, nil
}
