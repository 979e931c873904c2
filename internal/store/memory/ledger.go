package memory

import (
	"context"
	"fmt"
	"sync"

	"finassist/internal/core"

	"github.com/google/uuid"
)

// Ledger keeps one ordered transaction slice per user. owner maps every
// transaction id in the store to its user so ids stay unique store-wide.
type Ledger struct {
	mu     sync.RWMutex
	byUser map[string][]core.Transaction
	owner  map[string]string
	newID  func() string
}

func NewLedger() *Ledger {
	return &Ledger{
		byUser: map[string][]core.Transaction{},
		owner:  map[string]string{},
		newID:  uuid.NewString,
	}
}

// Provision creates an empty collection for userID if none exists.
func (l *Ledger) Provision(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byUser[userID]; !ok {
		l.byUser[userID] = []core.Transaction{}
	}
}

func (l *Ledger) List(_ context.Context, userID string) ([]core.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.Transaction, len(l.byUser[userID]))
	copy(out, l.byUser[userID])
	return out, nil
}

func (l *Ledger) Create(_ context.Context, userID string, in core.TransactionInput) (core.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.newID()
	for _, taken := l.owner[id]; taken; _, taken = l.owner[id] {
		id = l.newID()
	}
	tx, err := core.NewTransaction(id, userID, in)
	if err != nil {
		return core.Transaction{}, err
	}
	l.byUser[userID] = append(l.byUser[userID], tx)
	l.owner[id] = userID
	return tx, nil
}

func (l *Ledger) Get(_ context.Context, userID, txID string) (core.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, err := l.indexOf(userID, txID)
	if err != nil {
		return core.Transaction{}, err
	}
	return l.byUser[userID][i], nil
}

func (l *Ledger) Update(_ context.Context, userID, txID string, p core.TransactionPatch) (core.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, err := l.indexOf(userID, txID)
	if err != nil {
		return core.Transaction{}, err
	}
	updated, err := l.byUser[userID][i].Apply(p)
	if err != nil {
		return core.Transaction{}, err
	}
	l.byUser[userID][i] = updated
	return updated, nil
}

func (l *Ledger) Delete(_ context.Context, userID, txID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, err := l.indexOf(userID, txID)
	if err != nil {
		return err
	}
	txs := l.byUser[userID]
	l.byUser[userID] = append(txs[:i:i], txs[i+1:]...)
	delete(l.owner, txID)
	return nil
}

// indexOf must be called with mu held.
func (l *Ledger) indexOf(userID, txID string) (int, error) {
	if l.owner[txID] != userID {
		return -1, fmt.Errorf("%w: %s", core.ErrNotFound, txID)
	}
	for i, tx := range l.byUser[userID] {
		if tx.ID == txID {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", core.ErrNotFound, txID)
}
