package staking

import "sync"

// keyedMutex serialises operations per asset key. Entries are reference
// counted so the table does not grow with the set of assets ever staked.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[AssetKey]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[AssetKey]*lockEntry)}
}

// Acquire blocks until the per-key lock is held and returns the release func.
func (k *keyedMutex) Acquire(key AssetKey) func() {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
