package bridge

import (
	"errors"
	"reflect"

	"github.com/creastat/dispatch/core"
)

// Direction selects which world is the source of a sync pass
type Direction int

const (
	// PrimaryToSecondary copies state from the primary world into the
	// secondary world
	PrimaryToSecondary Direction = iota

	// SecondaryToPrimary copies state from the secondary world back into
	// the primary world
	SecondaryToPrimary
)

func (d Direction) String() string {
	switch d {
	case PrimaryToSecondary:
		return "primary->secondary"
	case SecondaryToPrimary:
		return "secondary->primary"
	default:
		return "unknown"
	}
}

var (
	// ErrSyncerSetup reports a syncer Setup failure; it aborts Build.
	ErrSyncerSetup = errors.New("syncer setup failed")

	// ErrSyncerSync reports a syncer Sync failure; during Build it aborts
	// construction, a half-synced pair of worlds has no recovery path.
	ErrSyncerSync = errors.New("syncer sync failed")
)

// Syncer copies one resource or component type across the bridge in a given
// direction. Syncers hold no state beyond configuration; they are owned by
// the bridge for the runtime's lifetime and their calls are always
// serialized, each receiving only the narrow View below rather than the
// whole bridge state.
type Syncer interface {
	// Setup runs once while the bridge is prepared, before any sync pass.
	Setup(primary core.World) error

	// Sync copies data in the given direction using the current entity
	// mapping.
	Sync(primary core.World, v *View, dir Direction) error
}

// View is the slice of bridge state a single syncer call may touch: the
// secondary world and the entity mapping. Counterpart lookup and creation go
// through the view so every new pairing lands in the bimap.
type View struct {
	secondary core.World
	bimap     *EntityBimap
}

// Secondary returns the secondary world
func (v *View) Secondary() core.World {
	return v.secondary
}

// Mapping returns the entity identity mapping
func (v *View) Mapping() *EntityBimap {
	return v.bimap
}

// CounterpartSecondary returns the secondary entity mirroring p, creating it
// and recording the pairing if none exists yet
func (v *View) CounterpartSecondary(p core.Entity) core.Entity {
	if s, ok := v.bimap.Secondary(p); ok {
		return s
	}
	s := v.secondary.CreateEntity()
	v.bimap.insert(p, s)
	return s
}

// CounterpartPrimary returns the primary entity mirroring s, creating it in
// the given primary world and recording the pairing if none exists yet
func (v *View) CounterpartPrimary(primary core.World, s core.Entity) core.Entity {
	if p, ok := v.bimap.Primary(s); ok {
		return p
	}
	p := primary.CreateEntity()
	v.bimap.insert(p, s)
	return p
}

// ResourceSyncer mirrors the world-global resource of type T
type ResourceSyncer[T any] struct{}

// NewResourceSyncer creates a syncer for the resource type T
func NewResourceSyncer[T any]() ResourceSyncer[T] {
	return ResourceSyncer[T]{}
}

func (ResourceSyncer[T]) Setup(core.World) error { return nil }

func (ResourceSyncer[T]) Sync(primary core.World, v *View, dir Direction) error {
	src, dst := core.World(primary), v.Secondary()
	if dir == SecondaryToPrimary {
		src, dst = dst, src
	}
	if val, ok := core.GetResource[T](src); ok {
		dst.SetResource(val)
	}
	return nil
}

// ComponentSyncer mirrors the component of type T on every entity carrying
// it, creating counterpart entities as needed
type ComponentSyncer[T any] struct{}

// NewComponentSyncer creates a syncer for the component type T
func NewComponentSyncer[T any]() ComponentSyncer[T] {
	return ComponentSyncer[T]{}
}

func (ComponentSyncer[T]) Setup(core.World) error { return nil }

func (ComponentSyncer[T]) Sync(primary core.World, v *View, dir Direction) error {
	t := core.TypeOf[T]()
	switch dir {
	case PrimaryToSecondary:
		for _, p := range primary.EntitiesWith(t) {
			s := v.CounterpartSecondary(p)
			if val, ok := primary.Component(p, t); ok {
				v.Secondary().SetComponent(s, val)
			}
		}
	case SecondaryToPrimary:
		for _, s := range v.Secondary().EntitiesWith(t) {
			p := v.CounterpartPrimary(primary, s)
			if val, ok := v.Secondary().Component(s, t); ok {
				primary.SetComponent(p, val)
			}
		}
	}
	return nil
}

// MergeFunc reconciles one entity's pair of component values. Either input
// may be nil when the corresponding world has no component on that entity;
// returned non-nil values are written back to their worlds.
type MergeFunc[P, S any] func(dir Direction, m *EntityBimap, primary *P, secondary *S) (*P, *S)

// ComponentSyncerWith mirrors a pair of component types, P in the primary
// world and S in the secondary, through a caller-supplied merge function.
// This covers migrations where the two worlds do not share a component
// representation.
type ComponentSyncerWith[P, S any] struct {
	merge MergeFunc[P, S]
}

// NewComponentSyncerWith creates a merge-function syncer
func NewComponentSyncerWith[P, S any](merge MergeFunc[P, S]) ComponentSyncerWith[P, S] {
	return ComponentSyncerWith[P, S]{merge: merge}
}

func (ComponentSyncerWith[P, S]) Setup(core.World) error { return nil }

func (cs ComponentSyncerWith[P, S]) Sync(primary core.World, v *View, dir Direction) error {
	pt := core.TypeOf[P]()
	st := core.TypeOf[S]()
	secondary := v.Secondary()

	switch dir {
	case PrimaryToSecondary:
		for _, pe := range primary.EntitiesWith(pt) {
			se := v.CounterpartSecondary(pe)
			cs.mergePair(v, primary, pe, se, dir, pt, st)
		}
	case SecondaryToPrimary:
		for _, se := range secondary.EntitiesWith(st) {
			pe := v.CounterpartPrimary(primary, se)
			cs.mergePair(v, primary, pe, se, dir, pt, st)
		}
	}
	return nil
}

func (cs ComponentSyncerWith[P, S]) mergePair(v *View, primary core.World, pe, se core.Entity, dir Direction, pt, st reflect.Type) {
	var pv *P
	if raw, ok := primary.Component(pe, pt); ok {
		val := raw.(P)
		pv = &val
	}
	var sv *S
	if raw, ok := v.Secondary().Component(se, st); ok {
		val := raw.(S)
		sv = &val
	}

	np, ns := cs.merge(dir, v.Mapping(), pv, sv)
	if np != nil {
		primary.SetComponent(pe, *np)
	}
	if ns != nil {
		v.Secondary().SetComponent(se, *ns)
	}
}

// SyncBundle groups syncer and secondary-world registrations, the migration
// counterpart of core.Bundle. Setup runs at the start of the bridge build
// phase, before any syncer setup.
type SyncBundle interface {
	Setup(primary core.World, r Registrar) error
}

// Registrar is the surface a SyncBundle registers against.
type Registrar interface {
	Sync(s Syncer)
	System(desc core.SystemDesc, name string, deps ...string)
	ThreadLocal(desc core.ThreadLocalDesc)
}
