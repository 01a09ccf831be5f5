package services

import "sync"

// postLocks serializes floor/order mutations per post id. The
// read-compute-write sequences (max-floor probe before insert, batch
// reorder) are each a critical section scoped to one post; operations
// on different posts never contend.
type postLocks struct {
	mu      sync.Mutex
	entries map[uint]*postLockEntry
}

type postLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newPostLocks() *postLocks {
	return &postLocks{entries: map[uint]*postLockEntry{}}
}

func (l *postLocks) lock(postID uint) {
	l.mu.Lock()
	entry, ok := l.entries[postID]
	if !ok {
		entry = &postLockEntry{}
		l.entries[postID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *postLocks) unlock(postID uint) {
	l.mu.Lock()
	entry, ok := l.entries[postID]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, postID)
		}
	}
	l.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
