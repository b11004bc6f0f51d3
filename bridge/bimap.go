package bridge

import (
	"sync"

	"github.com/creastat/dispatch/core"
)

// EntityBimap is the bijective identity mapping between primary-world and
// secondary-world entities. Pairings are only ever added when a syncer
// mirrors an entity for the first time and only ever removed when one side's
// entity dies; an entity never has more than one counterpart.
type EntityBimap struct {
	mu          sync.RWMutex
	toSecondary map[core.Entity]core.Entity
	toPrimary   map[core.Entity]core.Entity
}

// NewEntityBimap creates an empty mapping
func NewEntityBimap() *EntityBimap {
	return &EntityBimap{
		toSecondary: make(map[core.Entity]core.Entity),
		toPrimary:   make(map[core.Entity]core.Entity),
	}
}

// Secondary returns the secondary counterpart of p
func (m *EntityBimap) Secondary(p core.Entity) (core.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.toSecondary[p]
	return s, ok
}

// Primary returns the primary counterpart of s
func (m *EntityBimap) Primary(s core.Entity) (core.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.toPrimary[s]
	return p, ok
}

// Len returns the number of pairings
func (m *EntityBimap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.toSecondary)
}

// insert records a pairing. If either side is already mapped its stale
// pairing is evicted first, so the mapping stays bijective under remaps.
func (m *EntityBimap) insert(p, s core.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.toSecondary[p]; ok {
		delete(m.toPrimary, old)
	}
	if old, ok := m.toPrimary[s]; ok {
		delete(m.toSecondary, old)
	}
	m.toSecondary[p] = s
	m.toPrimary[s] = p
}

// removeBySecondary drops the pairing whose secondary side is s
func (m *EntityBimap) removeBySecondary(s core.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.toPrimary[s]; ok {
		delete(m.toSecondary, p)
		delete(m.toPrimary, s)
	}
}

// prune drops every pairing whose primary or secondary entity is no longer
// alive. Used as the fallback when lifecycle events were lost to listener
// overflow, and to clear pairings whose primary entity died (the primary
// world has no listener bound).
func (m *EntityBimap) prune(primaryAlive, secondaryAlive func(core.Entity) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p, s := range m.toSecondary {
		if primaryAlive(p) && secondaryAlive(s) {
			continue
		}
		delete(m.toSecondary, p)
		delete(m.toPrimary, s)
	}
}
