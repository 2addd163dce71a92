// Package keylock provides per-key mutual exclusion.
//
// The webhook handler holds a conversation's lock across the
// enrichment check-and-set and the downstream calls, so rapid
// messages in the same conversation cannot both observe the
// enrichment flag as unset.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map is a set of lazily created mutexes addressed by conversation id.
// Entries are removed once the last holder releases them.
type Map struct {
	mu    sync.Mutex
	locks map[int]*entry
}

// New creates an empty lock map.
func New() *Map {
	return &Map{locks: make(map[int]*entry)}
}

// Lock acquires the mutex for key, blocking while another caller holds
// it, and returns the release function.
func (m *Map) Lock(key int) func() {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}
