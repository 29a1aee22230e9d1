// Package session keeps the in-memory mapping from transport sender handles
// to authenticated usernames. Nothing here survives a restart; a handle is
// not an identity, only a successful connect binds one.
package session

import (
	"sync"
	"time"
)

// Session records who a sender handle authenticated as and when it was last
// active.
type Session struct {
	Username string
	Since    time.Time

	lastSeen time.Time
}

// Table is a coarse-locked handle -> session map with idle eviction.
// Operations are O(1); contention stays low.
type Table struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
}

// NewTable creates a table evicting sessions idle for longer than
// idleTimeout.
func NewTable(idleTimeout time.Duration) *Table {
	return &Table{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
	}
}

// Bind associates handle with username, replacing any prior binding for
// that handle (last writer wins).
func (t *Table) Bind(handle, username string) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[handle] = &Session{Username: username, Since: now, lastSeen: now}
}

// Lookup resolves handle to its bound username and refreshes the idle
// deadline on a hit.
func (t *Table) Lookup(handle string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[handle]
	if !ok {
		return "", false
	}
	s.lastSeen = time.Now()
	return s.Username, true
}

// Unbind drops the binding for handle, if any.
func (t *Table) Unbind(handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, handle)
}

// ExpireIdle removes every session idle since before now minus the idle
// timeout and reports how many were evicted.
func (t *Table) ExpireIdle(now time.Time) int {
	cutoff := now.Add(-t.idleTimeout)

	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for handle, s := range t.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(t.sessions, handle)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
