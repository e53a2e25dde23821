// Package locks serializes playlist mutations. The dispatcher and the
// completion handler both perform read-modify-write cycles on the same
// playlist row; running them under a per-playlist lock removes the
// lost-update race of unsynchronized concurrent segues.
//
// Two managers are provided: an in-process manager for single-instance
// deployments and a Redis-backed manager for deployments where completion
// messages may be delivered to any instance.
package locks

import (
	"context"
	"sync"
)

// Manager runs a function while holding an exclusive lock for a key.
type Manager interface {
	// WithLock blocks until the key's lock is held, runs fn, and releases
	// the lock. It returns fn's error, or the context error if the lock
	// could not be acquired in time.
	WithLock(ctx context.Context, key string, fn func() error) error
	Close() error
}

// MemoryManager serializes per-key work inside a single process.
type MemoryManager struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewMemoryManager creates an in-process lock manager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		locks: make(map[string]*keyLock),
	}
}

// WithLock runs fn while holding the key's lock. Lock entries are reference
// counted and removed once no goroutine is waiting on them.
func (m *MemoryManager) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &keyLock{}
		m.locks[key] = lock
	}
	lock.refs++
	m.mu.Unlock()

	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		m.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}()

	return fn()
}

// Close implements Manager.
func (m *MemoryManager) Close() error {
	return nil
}
