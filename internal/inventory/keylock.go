package inventory

import "sync"

// keyedLocks serializes operations per variant. Reservation creation is a
// check-then-insert; without per-variant serialization two concurrent calls
// can both observe sufficient availability before either commits.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

// lockAll acquires the locks for the given keys in sorted order so two calls
// over overlapping variant sets cannot deadlock. Keys must be sorted and
// deduplicated by the caller. The returned func releases in reverse order.
func (k *keyedLocks) lockAll(keys []string) func() {
	acquired := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		l := k.get(key)
		l.Lock()
		acquired = append(acquired, l)
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}
