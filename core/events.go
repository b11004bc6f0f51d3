package core

import (
	"sync"

	"github.com/google/uuid"
)

// EntityEventKind categorizes entity lifecycle events
type EntityEventKind int

const (
	// EntityCreated is emitted after an entity is allocated
	EntityCreated EntityEventKind = iota

	// EntityRemoved is emitted after an entity and its components are destroyed
	EntityRemoved
)

// EntityEvent describes a single entity lifecycle transition
type EntityEvent struct {
	Kind   EntityEventKind
	Entity Entity
}

// ListenerID identifies a bound lifecycle listener
type ListenerID = uuid.UUID

// EntityChannel broadcasts entity lifecycle events to bound listeners. Each
// listener owns a bounded buffer; when a buffer is full the oldest event is
// dropped and the listener's drop counter is incremented, so a consumer can
// detect the gap and fall back to a full reconciliation scan instead of
// trusting an incomplete event stream.
type EntityChannel struct {
	mu        sync.Mutex
	listeners map[ListenerID]*EntityListener
}

// NewEntityChannel creates an empty lifecycle channel
func NewEntityChannel() *EntityChannel {
	return &EntityChannel{
		listeners: make(map[ListenerID]*EntityListener),
	}
}

// Bind attaches a new listener with the given buffer capacity
func (c *EntityChannel) Bind(capacity int) *EntityListener {
	l := &EntityListener{
		id:  uuid.New(),
		buf: make([]EntityEvent, 0, capacity),
		cap: capacity,
	}

	c.mu.Lock()
	c.listeners[l.id] = l
	c.mu.Unlock()

	return l
}

// Unbind detaches the listener with the given ID
func (c *EntityChannel) Unbind(id ListenerID) {
	c.mu.Lock()
	delete(c.listeners, id)
	c.mu.Unlock()
}

// Publish delivers an event to every bound listener
func (c *EntityChannel) Publish(ev EntityEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range c.listeners {
		l.push(ev)
	}
}

// EntityListener is a bounded buffer of lifecycle events bound to a channel
type EntityListener struct {
	mu      sync.Mutex
	id      ListenerID
	buf     []EntityEvent
	cap     int
	dropped uint64
}

// ID returns the listener's identity, used to unbind it
func (l *EntityListener) ID() ListenerID {
	return l.id
}

// Drain returns and clears all buffered events in publication order
func (l *EntityListener) Drain() []EntityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.buf
	l.buf = make([]EntityEvent, 0, l.cap)
	return out
}

// TakeDropped returns and resets the count of events lost to buffer overflow
func (l *EntityListener) TakeDropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.dropped
	l.dropped = 0
	return n
}

func (l *EntityListener) push(ev EntityEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buf) == l.cap {
		copy(l.buf, l.buf[1:])
		l.buf = l.buf[:len(l.buf)-1]
		l.dropped++
	}
	l.buf = append(l.buf, ev)
}
