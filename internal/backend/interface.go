// Package backend builds the identity and ledger store selected by
// DATA_BACKEND together with the optional event publisher.
package backend

import (
	"context"

	"finassist/internal/amqp"
	"finassist/internal/store"
)

// CleanupFunc releases whatever the factory opened.
type CleanupFunc func() error

// BackendResult contains the store, the publisher (nil when AMQP is not
// configured) and a cleanup function that is always non-nil.
type BackendResult struct {
	Backend   store.Backend
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDSN string

	// Event publishing, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
