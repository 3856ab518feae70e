package abus

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// PathLockRegistry hands out advisory in-process locks keyed by exact path
// string. Entries are reference counted and removed once nobody holds or waits
// for them, so the registry only grows with the number of contended paths.
type PathLockRegistry struct {
	locks *xsync.MapOf[string, *pathLock]
}

type pathLock struct {
	mu   sync.Mutex
	refs int // guarded by the map bucket lock inside Compute
}

// NewPathLockRegistry creates an empty registry.
func NewPathLockRegistry() *PathLockRegistry {
	return &PathLockRegistry{locks: xsync.NewMapOf[string, *pathLock]()}
}

// Lock blocks until the lock for path is held and returns the function that
// releases it. Locks are not reentrant.
func (r *PathLockRegistry) Lock(path string) (unlock func()) {
	l, _ := r.locks.Compute(path, func(old *pathLock, loaded bool) (*pathLock, bool) {
		if !loaded {
			old = &pathLock{}
		}
		old.refs++
		return old, false
	})
	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		r.locks.Compute(path, func(old *pathLock, loaded bool) (*pathLock, bool) {
			if !loaded {
				return nil, true
			}
			old.refs--
			return old, old.refs == 0
		})
	}
}

// Len returns the number of paths currently locked or waited for.
func (r *PathLockRegistry) Len() int {
	return r.locks.Size()
}
