package registry

import (
	"sync"

	"github.com/hamed0406/serverwatch/internal/domain"
)

// targetLocks hands out one mutex per target. Entries are never removed;
// the set is bounded by the catalog.
type targetLocks struct {
	mu sync.Mutex
	m  map[domain.TargetID]*sync.Mutex
}

func (l *targetLocks) get(id domain.TargetID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[domain.TargetID]*sync.Mutex)
	}
	mu, ok := l.m[id]
	if !ok {
		mu = &sync.Mutex{}
		l.m[id] = mu
	}
	return mu
}

// lockTarget serializes sink I/O for one target. Import excludes all of them.
func (r *Registry) lockTarget(id domain.TargetID) (unlock func()) {
	r.ioMu.RLock()
	mu := r.locks.get(id)
	mu.Lock()
	return func() {
		mu.Unlock()
		r.ioMu.RUnlock()
	}
}
