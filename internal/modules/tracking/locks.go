package tracking

import (
	"sync"

	"fleet/internal/types"
)

// keyedMutex serializes work per asset while letting different assets
// proceed in parallel. Entries are dropped once no goroutine holds or waits
// on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[types.ID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[types.ID]*keyedEntry)}
}

func (k *keyedMutex) Lock(id types.ID) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
