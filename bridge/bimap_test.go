package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/creastat/dispatch/core"
)

func TestBimapInsertAndLookup(t *testing.T) {
	m := NewEntityBimap()
	m.insert(1, 100)
	m.insert(2, 200)

	s, ok := m.Secondary(1)
	require.True(t, ok)
	assert.Equal(t, core.Entity(100), s)

	p, ok := m.Primary(200)
	require.True(t, ok)
	assert.Equal(t, core.Entity(2), p)

	_, ok = m.Secondary(3)
	assert.False(t, ok)
	assert.Equal(t, 2, m.Len())
}

// TestBimapInsertEvictsStalePairings tests that remapping either side removes
// the crosslinked pairing instead of leaving a dangling reverse entry
func TestBimapInsertEvictsStalePairings(t *testing.T) {
	m := NewEntityBimap()
	m.insert(1, 100)

	// Remap the primary side.
	m.insert(1, 101)
	_, ok := m.Primary(100)
	assert.False(t, ok, "old secondary must be unmapped")
	s, _ := m.Secondary(1)
	assert.Equal(t, core.Entity(101), s)

	// Remap the secondary side.
	m.insert(2, 101)
	_, ok = m.Secondary(1)
	assert.False(t, ok, "old primary must be unmapped")
	p, _ := m.Primary(101)
	assert.Equal(t, core.Entity(2), p)
	assert.Equal(t, 1, m.Len())
}

func TestBimapRemoveBySecondary(t *testing.T) {
	m := NewEntityBimap()
	m.insert(1, 100)

	m.removeBySecondary(100)
	assert.Equal(t, 0, m.Len())

	// Unknown secondary is a no-op.
	m.removeBySecondary(999)
	assert.Equal(t, 0, m.Len())
}

func TestBimapPrune(t *testing.T) {
	m := NewEntityBimap()
	m.insert(1, 100)
	m.insert(2, 200)
	m.insert(3, 300)

	deadPrimary := map[core.Entity]bool{2: true}
	deadSecondary := map[core.Entity]bool{300: true}

	m.prune(
		func(p core.Entity) bool { return !deadPrimary[p] },
		func(s core.Entity) bool { return !deadSecondary[s] },
	)

	assert.Equal(t, 1, m.Len())
	_, ok := m.Secondary(1)
	assert.True(t, ok, "fully alive pairing must survive")
	_, ok = m.Secondary(2)
	assert.False(t, ok)
	_, ok = m.Primary(300)
	assert.False(t, ok)
}

// The mapping stays bijective under any interleaving of inserts and removals:
// every forward entry has a matching reverse entry and vice versa.
func TestPropertyBimapBijective(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := NewEntityBimap()
		steps := rapid.IntRange(1, 50).Draw(rt, "steps")

		for i := 0; i < steps; i++ {
			p := core.Entity(rapid.Uint64Range(1, 10).Draw(rt, "p"))
			s := core.Entity(rapid.Uint64Range(100, 110).Draw(rt, "s"))
			if rapid.Bool().Draw(rt, "insert") {
				m.insert(p, s)
			} else {
				m.removeBySecondary(s)
			}
		}

		for p, s := range m.toSecondary {
			back, ok := m.toPrimary[s]
			if !ok || back != p {
				rt.Fatalf("forward entry %d->%d has no matching reverse entry", p, s)
			}
		}
		for s, p := range m.toPrimary {
			fwd, ok := m.toSecondary[p]
			if !ok || fwd != s {
				rt.Fatalf("reverse entry %d->%d has no matching forward entry", s, p)
			}
		}
	})
}
