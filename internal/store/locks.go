package store

import (
	"context"
	"sync"
)

// rowLocks is a keyed exclusive lock table used by MemoryStore to emulate
// row-level locks. Waiters block on the holder's channel, so a lock wait can
// be bounded by the caller's context.
type rowLocks struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func newRowLocks() *rowLocks {
	return &rowLocks{held: make(map[string]chan struct{})}
}

// acquire blocks until key is free or ctx is done.
func (l *rowLocks) acquire(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
			// Holder released; race the other waiters for it.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// release frees key and wakes every waiter.
func (l *rowLocks) release(key string) {
	l.mu.Lock()
	ch, ok := l.held[key]
	if ok {
		delete(l.held, key)
	}
	l.mu.Unlock()
	if ok {
		close(ch)
	}
}
