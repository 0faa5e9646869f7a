package reservations

import (
	"sync"
)

// slotLocks serializes writers that target the same table on the same day inside this
// process. The database row lock does the same across processes on drivers that have one.
type slotLocks struct {
	mu    sync.Mutex
	slots map[string]*slotLock
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

func newSlotLocks() *slotLocks {
	return &slotLocks{slots: make(map[string]*slotLock)}
}

// lock blocks until key is free and returns the matching unlock
func (l *slotLocks) lock(key string) func() {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slotLock{}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	s.mu.Lock()

	return func() {
		s.mu.Unlock()
		l.mu.Lock()
		s.refs--
		if s.refs == 0 {
			delete(l.slots, key)
		}
		l.mu.Unlock()
	}
}

func (l *slotLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func slotKey(businessID, tableID, date string) string {
	return businessID + "|" + tableID + "|" + date
}
