// Package services holds the ledger use cases: registration, login,
// identifier authentication, transaction CRUD and the summary.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"finassist/internal/amqp"
	"finassist/internal/cache"
	"finassist/internal/core"
	"finassist/internal/log"
	"finassist/internal/store"
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// LedgerService orchestrates the identity and ledger stores and publishes
// an event after every successful mutation.
type LedgerService struct {
	users     store.UserStore
	txs       store.TransactionStore
	publisher EventPublisher
	userCache cache.Cache[core.User]
	currency  string
	logger    *log.StructuredLogger
}

type Option func(*LedgerService)

func WithPublisher(p EventPublisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

// WithUserCache caches resolved identifiers. Users are never updated or
// deleted, so entries only leave the cache by eviction.
func WithUserCache(c cache.Cache[core.User]) Option {
	return func(s *LedgerService) { s.userCache = c }
}

func WithCurrency(currency string) Option {
	return func(s *LedgerService) {
		if currency != "" {
			s.currency = currency
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *LedgerService) { s.logger = log.NewStructuredLogger(l) }
}

func NewLedgerService(users store.UserStore, txs store.TransactionStore, opts ...Option) *LedgerService {
	s := &LedgerService{
		users:    users,
		txs:      txs,
		currency: core.DefaultCurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewStructuredLogger(log.FromContext(context.Background()).WithComponent(log.ComponentLedger))
	}
	return s
}

// Currency returns the reporting label attached to summaries.
func (s *LedgerService) Currency() string {
	return s.currency
}

func (s *LedgerService) Register(ctx context.Context, username, password string) (core.User, error) {
	u, err := s.users.Register(ctx, username, password)
	if err != nil {
		return core.User{}, fmt.Errorf("register %q: %w", username, err)
	}
	s.publish(ctx, amqp.NewUserEvent(u))
	return u, nil
}

// Login compares the password verbatim. An unknown username and a wrong
// password fail identically.
func (s *LedgerService) Login(ctx context.Context, username, password string) (core.User, error) {
	u, ok, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return core.User{}, fmt.Errorf("login: %w", err)
	}
	if !ok || u.Password != password {
		return core.User{}, core.ErrInvalidCredentials
	}
	return u, nil
}

// Authenticate resolves a caller-supplied identifier to its user. It is a
// lookup gate: knowing a valid identifier is sufficient.
func (s *LedgerService) Authenticate(ctx context.Context, userID string) (core.User, error) {
	if userID == "" {
		return core.User{}, core.ErrMissingIdentifier
	}
	if s.userCache != nil {
		if u, ok := s.userCache.Get(userID); ok {
			return u, nil
		}
	}
	u, ok, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return core.User{}, fmt.Errorf("authenticate: %w", err)
	}
	if !ok {
		return core.User{}, core.ErrUnknownIdentifier
	}
	if s.userCache != nil {
		s.userCache.Set(userID, u)
	}
	return u, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	txs, err := s.txs.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}

func (s *LedgerService) CreateTransaction(ctx context.Context, userID string, in core.TransactionInput) (core.Transaction, error) {
	// A rejected input never reaches the store.
	if _, _, err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	tx, err := s.txs.Create(ctx, userID, in)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.logger.LogTransactionCreated(ctx, userID, tx.ID, tx.Kind.String(), tx.Amount.String())
	s.publish(ctx, amqp.NewTransactionEvent(amqp.EventTransactionCreated, tx))
	return tx, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, userID, txID string) (core.Transaction, error) {
	tx, err := s.txs.Get(ctx, userID, txID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, userID, txID string, p core.TransactionPatch) (core.Transaction, error) {
	tx, err := s.txs.Update(ctx, userID, txID, p)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.publish(ctx, amqp.NewTransactionEvent(amqp.EventTransactionUpdated, tx))
	return tx, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, txID string) error {
	// Read first so the event can carry the removed record.
	tx, err := s.txs.Get(ctx, userID, txID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := s.txs.Delete(ctx, userID, txID); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.publish(ctx, amqp.NewTransactionEvent(amqp.EventTransactionDeleted, tx))
	return nil
}

// Summary recomputes the totals from the live collection on every call.
func (s *LedgerService) Summary(ctx context.Context, userID string) (core.Summary, error) {
	txs, err := s.txs.List(ctx, userID)
	if err != nil {
		return core.Summary{}, fmt.Errorf("summary: %w", err)
	}
	return core.Summarize(txs, s.currency), nil
}

// publish never fails the caller: the mutation is already stored.
func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", ev.Type,
			"user_id", ev.UserID,
			"transaction_id", ev.TransactionID(),
			"error", err)
	}
}
