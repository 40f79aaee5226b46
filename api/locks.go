package api

import (
	"sort"
	"time"
)

// ElementLock is an exclusive edit claim by one user on one diagram
// element. At most one lock exists per element at any time.
type ElementLock struct {
	ElementID  string
	DiagramID  string
	UserID     string
	AcquiredAt time.Time
}

// Age returns how long the lock has been held (or since its last renewal)
func (l *ElementLock) Age(now time.Time) time.Duration {
	return now.Sub(l.AcquiredAt)
}

// LockTable arbitrates exclusive element locks. Not safe for concurrent
// use: the hub serializes all access behind its mutex.
type LockTable struct {
	locks map[string]*ElementLock
}

// NewLockTable creates an empty lock table
func NewLockTable() *LockTable {
	return &LockTable{
		locks: make(map[string]*ElementLock),
	}
}

// Acquire attempts to take the lock on an element. On success the new
// lock is returned. If the requester already holds the lock, the request
// is an idempotent renewal: the timestamp is refreshed, renewed is true,
// and no state change is visible to others. If another user holds the
// lock, the conflicting lock is returned instead.
func (t *LockTable) Acquire(userID, diagramID, elementID string, now time.Time) (lock *ElementLock, renewed bool, conflict *ElementLock) {
	existing, ok := t.locks[elementID]
	if ok {
		if existing.UserID != userID {
			return nil, false, existing
		}
		existing.AcquiredAt = now
		return existing, true, nil
	}

	lock = &ElementLock{
		ElementID:  elementID,
		DiagramID:  diagramID,
		UserID:     userID,
		AcquiredAt: now,
	}
	t.locks[elementID] = lock
	return lock, false, nil
}

// Release deletes the lock on an element if, and only if, the requester
// holds it. Returns the released lock, or false when the lock does not
// exist or belongs to someone else — a session may never release a lock
// it does not hold.
func (t *LockTable) Release(userID, elementID string) (*ElementLock, bool) {
	lock, ok := t.locks[elementID]
	if !ok || lock.UserID != userID {
		return lock, false
	}
	delete(t.locks, elementID)
	return lock, true
}

// Remove unconditionally deletes any lock on an element. Used by the
// element-delete path, where the element itself is going away.
func (t *LockTable) Remove(elementID string) (*ElementLock, bool) {
	lock, ok := t.locks[elementID]
	if !ok {
		return nil, false
	}
	delete(t.locks, elementID)
	return lock, true
}

// Get returns the current lock on an element, if any
func (t *LockTable) Get(elementID string) (*ElementLock, bool) {
	lock, ok := t.locks[elementID]
	return lock, ok
}

// ReleaseAllFor deletes every lock in a diagram held by the given user
// and returns them, sorted by element ID for stable notification order.
// Used when a user leaves or disconnects.
func (t *LockTable) ReleaseAllFor(userID, diagramID string) []*ElementLock {
	var released []*ElementLock
	for elementID, lock := range t.locks {
		if lock.UserID == userID && lock.DiagramID == diagramID {
			released = append(released, lock)
			delete(t.locks, elementID)
		}
	}
	sort.Slice(released, func(i, j int) bool { return released[i].ElementID < released[j].ElementID })
	return released
}

// SweepExpired deletes every lock older than timeout and returns them,
// sorted by element ID. The holder's connectivity is irrelevant: a stale
// lock is reclaimed even if its holder is still connected.
func (t *LockTable) SweepExpired(now time.Time, timeout time.Duration) []*ElementLock {
	var expired []*ElementLock
	for elementID, lock := range t.locks {
		if lock.Age(now) > timeout {
			expired = append(expired, lock)
			delete(t.locks, elementID)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ElementID < expired[j].ElementID })
	return expired
}

// SnapshotFor returns the locks currently held in one diagram, keyed by
// element ID. Sent to a session immediately after it joins.
func (t *LockTable) SnapshotFor(diagramID string) map[string]LockInfo {
	snapshot := make(map[string]LockInfo)
	for elementID, lock := range t.locks {
		if lock.DiagramID == diagramID {
			snapshot[elementID] = LockInfo{
				UserID:     lock.UserID,
				AcquiredAt: lock.AcquiredAt,
			}
		}
	}
	return snapshot
}

// Len returns the total number of held locks across all diagrams
func (t *LockTable) Len() int {
	return len(t.locks)
}
