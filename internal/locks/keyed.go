package locks

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout is returned when the lock could not be acquired before the
// context or acquisition budget ran out.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Locker acquires an exclusive lock for key. The returned release func must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// Keyed is a per-key mutex whose entries are dropped once unreferenced.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*keyedEntry)}
}

func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}

	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		k.deref(key, entry)
		return nil, ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			k.deref(key, entry)
		})
	}, nil
}

func (k *Keyed) deref(key string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
