package session

import "sync"

// Locker serializes work per call id. Entries are dropped when the last holder unlocks.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*callLock
}

type callLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*callLock)}
}

// Lock blocks until the call id is free and returns the matching unlock func.
func (l *Locker) Lock(callID string) func() {
	l.mu.Lock()
	cl, ok := l.locks[callID]
	if !ok {
		cl = &callLock{}
		l.locks[callID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, callID)
		}
		l.mu.Unlock()
	}
}

// Len is the number of call ids currently held or waited on.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
