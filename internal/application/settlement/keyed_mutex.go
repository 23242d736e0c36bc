package settlement

import "sync"

// keyedMutex serializes work per asset key. Acquire is non-blocking: a
// second caller on a held key is rejected instead of queued, which turns
// reentrant settlement attempts on the same asset into a conflict error
// rather than a deadlock.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{held: make(map[string]struct{})}
}

// Acquire takes the guard for key. Returns false if the key is already held.
func (k *keyedMutex) Acquire(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.held[key]; ok {
		return false
	}
	k.held[key] = struct{}{}
	return true
}

// Release frees the guard for key.
func (k *keyedMutex) Release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, key)
}
