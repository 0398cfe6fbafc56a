package ledger

import "sync"

// streamLock is one stream's append lock plus the number of holders and
// waiters currently interested in it.
type streamLock struct {
	mu   sync.Mutex
	refs int
}

// streamLocks serializes appends per stream within one process. Appends to
// different streams proceed in parallel; two appends to the same stream
// must not both read the same head and produce sibling blocks. Entries are
// reference-counted and removed once the last writer releases, so the
// arena does not grow with the number of streams ever appended.
type streamLocks struct {
	mu    sync.Mutex
	locks map[string]*streamLock
}

func (a *streamLocks) acquire(streamID string) *streamLock {
	a.mu.Lock()
	if a.locks == nil {
		a.locks = make(map[string]*streamLock)
	}
	l, ok := a.locks[streamID]
	if !ok {
		l = &streamLock{}
		a.locks[streamID] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return l
}

func (a *streamLocks) release(streamID string, l *streamLock) {
	l.mu.Unlock()

	a.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(a.locks, streamID)
	}
	a.mu.Unlock()
}
