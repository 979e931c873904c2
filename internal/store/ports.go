package store

import (
	"context"

	"finassist/internal/core"
)

// Ports implemented by the memory and sqlite backends.
type (
	UserStore interface {
		// Register creates a user and provisions its empty ledger.
		Register(ctx context.Context, username, password string) (core.User, error)
		FindByUsername(ctx context.Context, username string) (core.User, bool, error)
		FindByID(ctx context.Context, id string) (core.User, bool, error)
	}

	TransactionStore interface {
		// List returns the user's transactions in insertion order. An
		// unprovisioned user yields an empty slice, never an error.
		List(ctx context.Context, userID string) ([]core.Transaction, error)
		Create(ctx context.Context, userID string, in core.TransactionInput) (core.Transaction, error)
		Get(ctx context.Context, userID, txID string) (core.Transaction, error)
		Update(ctx context.Context, userID, txID string, p core.TransactionPatch) (core.Transaction, error)
		Delete(ctx context.Context, userID, txID string) error
	}

	Backend interface {
		UserStore
		TransactionStore
		Ping(ctx context.Context) error
		Close() error
	}
)
