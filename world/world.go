// Package world provides a map-backed reference implementation of
// core.World. The dispatcher treats the storage engine as an external
// collaborator; this implementation exists for the bridge, the test suite,
// and small hosts that do not bring their own storage.
package world

import (
	"reflect"
	"slices"
	"sync"

	"github.com/creastat/dispatch/core"
)

// World stores resources keyed by type and components keyed by type and
// entity. All access goes through a single RWMutex: concurrently running
// systems may read and write freely, and the finer shared/exclusive
// discipline the dispatcher assumes is the caller's wiring responsibility.
type World struct {
	mu         sync.RWMutex
	next       core.Entity
	entities   map[core.Entity]struct{}
	resources  map[reflect.Type]any
	components map[reflect.Type]map[core.Entity]any
	events     *core.EntityChannel
}

// New creates an empty world
func New() *World {
	return &World{
		entities:   make(map[core.Entity]struct{}),
		resources:  make(map[reflect.Type]any),
		components: make(map[reflect.Type]map[core.Entity]any),
		events:     core.NewEntityChannel(),
	}
}

// CreateEntity allocates a fresh entity and publishes a creation event
func (w *World) CreateEntity() core.Entity {
	w.mu.Lock()
	w.next++
	e := w.next
	w.entities[e] = struct{}{}
	w.mu.Unlock()

	w.events.Publish(core.EntityEvent{Kind: core.EntityCreated, Entity: e})
	return e
}

// RemoveEntity destroys an entity, its components, and publishes a removal
// event. Returns false if the entity does not exist.
func (w *World) RemoveEntity(e core.Entity) bool {
	w.mu.Lock()
	if _, ok := w.entities[e]; !ok {
		w.mu.Unlock()
		return false
	}
	delete(w.entities, e)
	for _, byEntity := range w.components {
		delete(byEntity, e)
	}
	w.mu.Unlock()

	w.events.Publish(core.EntityEvent{Kind: core.EntityRemoved, Entity: e})
	return true
}

// Alive reports whether the entity currently exists
func (w *World) Alive(e core.Entity) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.entities[e]
	return ok
}

// Entities returns all live entities in creation order
func (w *World) Entities() []core.Entity {
	w.mu.RLock()
	out := make([]core.Entity, 0, len(w.entities))
	for e := range w.entities {
		out = append(out, e)
	}
	w.mu.RUnlock()

	slices.Sort(out)
	return out
}

// Resource returns the world-global value of the given type
func (w *World) Resource(t reflect.Type) (any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.resources[t]
	return v, ok
}

// SetResource stores a world-global value keyed by its dynamic type
func (w *World) SetResource(v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resources[reflect.TypeOf(v)] = v
}

// Component returns entity e's component of the given type
func (w *World) Component(e core.Entity, t reflect.Type) (any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.components[t][e]
	return v, ok
}

// SetComponent attaches or replaces a component on e. Setting a component on
// a dead entity is a no-op.
func (w *World) SetComponent(e core.Entity, v any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.entities[e]; !ok {
		return
	}
	t := reflect.TypeOf(v)
	byEntity, ok := w.components[t]
	if !ok {
		byEntity = make(map[core.Entity]any)
		w.components[t] = byEntity
	}
	byEntity[e] = v
}

// EntitiesWith returns, in creation order, the entities carrying a component
// of the given type. Deterministic order keeps sync passes reproducible.
func (w *World) EntitiesWith(t reflect.Type) []core.Entity {
	w.mu.RLock()
	out := make([]core.Entity, 0, len(w.components[t]))
	for e := range w.components[t] {
		out = append(out, e)
	}
	w.mu.RUnlock()

	slices.Sort(out)
	return out
}

// EntityChannel exposes the world's lifecycle event channel
func (w *World) EntityChannel() *core.EntityChannel {
	return w.events
}
