package agent

import (
	"sync"

	"github.com/m-mizutani/donna/pkg/model"
)

// keyedMutex hands out one mutex per thread key and forgets it once no
// goroutine holds or waits for it.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[model.ThreadKey]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[model.ThreadKey]*lockEntry)}
}

// Lock blocks until key is free and returns the matching unlock function
func (k *keyedMutex) Lock(key model.ThreadKey) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
