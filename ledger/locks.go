package ledger

import "sync"

// KeyedMutex serializes work per member. Every mutation touching a member's
// aggregates or packages runs under that member's lock; without it two
// concurrent check-ins can double- or under-consume one shared balance.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*memberLock
}

type memberLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*memberLock)}
}

// Lock acquires the lock for one member id, creating it on first use.
func (k *KeyedMutex) Lock(id int64) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &memberLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the member's lock and drops it once nobody waits.
func (k *KeyedMutex) Unlock(id int64) {
	k.mu.Lock()
	l := k.locks[id]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}
