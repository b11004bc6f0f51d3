package core

import "reflect"

// Entity identifies an entity within a single world. Identities are never
// reused within a world's lifetime and are meaningless across worlds; the
// bridge maintains its own cross-world mapping.
type Entity uint64

// World is the storage/query collaborator boundary. The dispatcher never
// touches component data itself; systems and syncers go through this
// interface, and the implementation owns aliasing discipline during
// concurrent execution.
type World interface {
	// CreateEntity allocates a fresh entity identity.
	CreateEntity() Entity

	// RemoveEntity destroys an entity and its components. Returns false if
	// the entity does not exist.
	RemoveEntity(e Entity) bool

	// Alive reports whether the entity currently exists.
	Alive(e Entity) bool

	// Entities returns a snapshot of all live entities.
	Entities() []Entity

	// Resource returns the world-global value stored under the given type.
	Resource(t reflect.Type) (any, bool)

	// SetResource stores a world-global value keyed by its dynamic type.
	SetResource(v any)

	// Component returns entity e's component of the given type.
	Component(e Entity, t reflect.Type) (any, bool)

	// SetComponent attaches (or replaces) a component on e, keyed by the
	// value's dynamic type.
	SetComponent(e Entity, v any)

	// EntitiesWith returns a snapshot of entities carrying a component of
	// the given type.
	EntitiesWith(t reflect.Type) []Entity

	// EntityChannel exposes the world's entity-lifecycle event channel.
	EntityChannel() *EntityChannel
}

// GetResource fetches a typed resource from w.
func GetResource[T any](w World) (T, bool) {
	var zero T
	v, ok := w.Resource(TypeOf[T]())
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// GetComponent fetches entity e's component of type T from w.
func GetComponent[T any](w World, e Entity) (T, bool) {
	var zero T
	v, ok := w.Component(e, TypeOf[T]())
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// TypeOf returns the reflect.Type key used for storing values of type T.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
