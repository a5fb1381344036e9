package checker

import "sync"

// targetLocks serializes checks of the same target within this process.
type targetLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newTargetLocks() *targetLocks {
	return &targetLocks{held: make(map[string]struct{})}
}

// tryLock claims id without blocking. The returned func releases it.
func (l *targetLocks) tryLock(id string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[id]; busy {
		return nil, false
	}
	l.held[id] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, id)
		l.mu.Unlock()
	}, true
}
