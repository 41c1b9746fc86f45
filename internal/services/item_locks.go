package services

import "sync"

type itemLock struct {
	mu   sync.Mutex
	refs int
}

// itemLocks serializes work per item inside one process. Entries are dropped
// once nobody holds or waits for them.
type itemLocks struct {
	mu    sync.Mutex
	locks map[string]*itemLock
}

func newItemLocks() *itemLocks {
	return &itemLocks{locks: make(map[string]*itemLock)}
}

func (l *itemLocks) lock(itemID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[itemID]
	if !ok {
		entry = &itemLock{}
		l.locks[itemID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, itemID)
		}
		l.mu.Unlock()
	}
}
