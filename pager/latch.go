package pager

import (
	"sync"

	"github.com/SimonWaldherr/gistvacuum/page"
)

// LockMode is the mode a page lock is held in. Adapted from the pack's
// per-page latch manager (intellect4all-storage-engines/btree/latch.go),
// renamed to match the vocabulary spec section 5 uses ("share-lock",
// "exclusive-lock") instead of "latch".
type LockMode int

const (
	Share LockMode = iota
	Exclusive
)

// pageLock is a per-page reader/writer lock.
type pageLock struct {
	mu sync.RWMutex
}

func (l *pageLock) lock(mode LockMode) {
	if mode == Share {
		l.mu.RLock()
	} else {
		l.mu.Lock()
	}
}

func (l *pageLock) unlock(mode LockMode) {
	if mode == Share {
		l.mu.RUnlock()
	} else {
		l.mu.Unlock()
	}
}

// LockManager hands out per-page locks. Spec section 5 forbids lock
// upgrade-in-place ("never upgrade in place — reacquiring is required by
// the buffer manager contract to avoid self-deadlock with readers"): callers
// must Unlock(Share) then Lock(Exclusive) rather than call an Upgrade method,
// and this type deliberately has no such method.
type LockManager struct {
	mu    sync.Mutex
	locks map[page.ID]*pageLock
}

func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[page.ID]*pageLock)}
}

func (lm *LockManager) get(id page.ID) *pageLock {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	l, ok := lm.locks[id]
	if !ok {
		l = &pageLock{}
		lm.locks[id] = l
	}
	return l
}

// Lock acquires the page's lock in the given mode, blocking as needed.
func (lm *LockManager) Lock(id page.ID, mode LockMode) {
	lm.get(id).lock(mode)
}

// Unlock releases the page's lock held in the given mode.
func (lm *LockManager) Unlock(id page.ID, mode LockMode) {
	lm.get(id).unlock(mode)
}
