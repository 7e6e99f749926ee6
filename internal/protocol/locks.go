package protocol

import "sync"

// IdentityLocks serializes registration-uniqueness checks per identity.
//
// Two concurrent registrations of the same identity must not both observe
// "not yet registered" and both commit, so the check-then-append sequence
// runs under the identity's lock. Locks for distinct identities do not
// contend. Entries are reference counted and removed when the last holder
// releases, so the map does not grow with the identity space.
type IdentityLocks struct {
	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

// NewIdentityLocks creates an empty lock registry.
func NewIdentityLocks() *IdentityLocks {
	return &IdentityLocks{locks: make(map[string]*identityLock)}
}

// Lock acquires the mutual-exclusion region for identity and returns the
// release function. The caller must invoke the release exactly once,
// typically via defer.
func (l *IdentityLocks) Lock(identity string) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.locks[identity]
	if !ok {
		entry = &identityLock{}
		l.locks[identity] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, identity)
		}
		l.mu.Unlock()
	}
}
