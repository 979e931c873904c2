package memory

import (
	"context"
	"sync"

	"finassist/internal/core"

	"github.com/google/uuid"
)

// Provisioner creates the empty ledger paired with a newly registered user.
type Provisioner interface {
	Provision(userID string)
}

// Users is the in-memory identity store. Records are indexed by username
// (primary) and by id (secondary); both maps are updated under one lock.
type Users struct {
	mu         sync.RWMutex
	byUsername map[string]core.User
	byID       map[string]core.User
	ledger     Provisioner
	newID      func() string
}

func NewUsers(ledger Provisioner) *Users {
	return &Users{
		byUsername: map[string]core.User{},
		byID:       map[string]core.User{},
		ledger:     ledger,
		newID:      uuid.NewString,
	}
}

func (u *Users) Register(_ context.Context, username, password string) (core.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.byUsername[username]; ok {
		return core.User{}, core.ErrDuplicateUsername
	}
	id := u.newID()
	for _, taken := u.byID[id]; taken; _, taken = u.byID[id] {
		id = u.newID()
	}
	user := core.User{ID: id, Username: username, Password: password}
	u.byUsername[username] = user
	u.byID[id] = user
	if u.ledger != nil {
		u.ledger.Provision(id)
	}
	return user, nil
}

func (u *Users) FindByUsername(_ context.Context, username string) (core.User, bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.byUsername[username]
	return user, ok, nil
}

func (u *Users) FindByID(_ context.Context, id string) (core.User, bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.byID[id]
	return user, ok, nil
}

// Len returns the number of registered users.
func (u *Users) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.byID)
}
