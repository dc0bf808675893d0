package delivery

import (
	"sync"

	"github.com/google/uuid"
)

// orderLocks serializes allocation per order within this process. Entries
// are reference-counted so the table does not grow with order volume.
type orderLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{entries: make(map[uuid.UUID]*lockEntry)}
}

// Acquire blocks until the caller holds the order's lock and returns the
// release function.
func (l *orderLocks) Acquire(orderID uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.entries[orderID]
	if !ok {
		entry = &lockEntry{}
		l.entries[orderID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, orderID)
		}
		l.mu.Unlock()
	}
}
