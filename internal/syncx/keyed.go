// Package syncx provides concurrency primitives missing from the standard
// library.
package syncx

import (
	"context"
	"sync"
)

// KeyedMutex serializes work per key: at most one holder per key at a time,
// while different keys proceed in parallel. Waiters can give up through
// their context. The zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// Lock blocks until the key is free or ctx is done. On success it returns
// the unlock function, which is safe to call more than once.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	l := m.acquireRef(key)

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		m.releaseRef(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			m.releaseRef(key, l)
		})
	}, nil
}

// TryLock acquires the key only if it is free right now.
func (m *KeyedMutex) TryLock(key string) (func(), bool) {
	l := m.acquireRef(key)

	select {
	case l.sem <- struct{}{}:
	default:
		m.releaseRef(key, l)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			m.releaseRef(key, l)
		})
	}, true
}

// Busy reports whether the key is held or waited on.
func (m *KeyedMutex) Busy(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[key]
	return ok
}

// Len returns the number of keys currently held or waited on.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *KeyedMutex) acquireRef(key string) *keyLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks == nil {
		m.locks = make(map[string]*keyLock)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *KeyedMutex) releaseRef(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}
