package userstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
)

// ErrIdentifierTaken is returned by Save when another user already owns the
// identifier.
var ErrIdentifierTaken = errors.New("identifier already in use")

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Memory is an in-process UserRepository. The zero value is not usable; use
// [NewMemory].
type Memory struct {
	mu     sync.RWMutex
	users  map[string]*goMFA.User
	byName map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		users:  map[string]*goMFA.User{},
		byName: map[string]string{},
	}
}

func (m *Memory) FindByID(_ context.Context, id string) (*goMFA.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, goMFA.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (m *Memory) FindByIdentifier(_ context.Context, identifier string) (*goMFA.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[normalizeIdentifier(identifier)]
	if !ok {
		return nil, goMFA.ErrUserNotFound
	}
	return m.users[id].Clone(), nil
}

// Save inserts or replaces user.
func (m *Memory) Save(_ context.Context, user *goMFA.User) error {
	if user == nil || user.ID == "" {
		return errors.New("user id required")
	}
	name := normalizeIdentifier(user.Identifier)

	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.byName[name]; ok && owner != user.ID {
		return ErrIdentifierTaken
	}
	if prev, ok := m.users[user.ID]; ok {
		delete(m.byName, normalizeIdentifier(prev.Identifier))
	}
	m.users[user.ID] = user.Clone()
	if name != "" {
		m.byName[name] = user.ID
	}
	return nil
}

func (m *Memory) Lock(_ context.Context, id string, until time.Time) error {
	return m.update(id, func(u *goMFA.User) {
		u.Locked = true
		u.LockExpiresAt = until
	})
}

func (m *Memory) Unlock(_ context.Context, id string) error {
	return m.update(id, func(u *goMFA.User) {
		u.Locked = false
		u.LockExpiresAt = time.Time{}
	})
}

// Len returns the number of stored users.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

func (m *Memory) update(id string, fn func(*goMFA.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return goMFA.ErrUserNotFound
	}
	fn(u)
	return nil
}
