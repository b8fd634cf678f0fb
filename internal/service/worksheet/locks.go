package worksheet

import "sync"

// dayLocks serialises read-modify-write cycles on the same day.
type dayLocks struct {
	mu    sync.Mutex
	locks map[string]*dayLock
}

type dayLock struct {
	mu   sync.Mutex
	refs int
}

func (l *dayLocks) lock(key string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*dayLock)
	}
	entry, ok := l.locks[key]
	if !ok {
		entry = &dayLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
