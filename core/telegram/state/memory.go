package state

import (
	"sync"
)

type entry struct {
	mu   sync.Mutex
	sess *Session
}

type memoryManager struct {
	mu      sync.RWMutex
	entries map[int64]*entry
}

// NewMemoryManager constructs an in-memory Manager implementation.
// Sessions live for the duration of the process only.
func NewMemoryManager() Manager {
	return &memoryManager{
		entries: make(map[int64]*entry),
	}
}

func (m *memoryManager) entryFor(userID int64) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		e = &entry{sess: &Session{State: StateIdle, Fields: make(map[string]string)}}
		m.entries[userID] = e
	}
	return e
}

// Do runs fn while holding the lock of the user's session. The session is
// created idle on first use and discarded again if fn leaves it idle with no
// collected fields.
func (m *memoryManager) Do(userID int64, fn func(s *Session) error) error {
	var e *entry
	for {
		e = m.entryFor(userID)
		e.mu.Lock()
		// A concurrent event may have discarded this entry between lookup
		// and lock acquisition; mutating the orphan would lose the update,
		// so re-check membership and retry on a fresh entry.
		m.mu.RLock()
		cur, ok := m.entries[userID]
		m.mu.RUnlock()
		if ok && cur == e {
			break
		}
		e.mu.Unlock()
	}
	defer e.mu.Unlock()

	err := fn(e.sess)

	if e.sess.State == StateIdle && len(e.sess.Fields) == 0 {
		m.mu.Lock()
		// Another goroutine may have replaced the entry; only drop our own.
		if cur, ok := m.entries[userID]; ok && cur == e {
			delete(m.entries, userID)
		}
		m.mu.Unlock()
	}
	return err
}

// Active reports whether the user currently has a conversation in progress.
func (m *memoryManager) Active(userID int64) bool {
	m.mu.RLock()
	e, ok := m.entries[userID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.State != StateIdle
}

// Clear removes the entire session for a user.
func (m *memoryManager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
}

// Count returns the number of users with a live session entry.
func (m *memoryManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
