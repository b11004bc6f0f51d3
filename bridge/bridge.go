package bridge

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/creastat/dispatch/core"
)

// ListenerCapacity is the bounded buffer size of the entity-lifecycle
// listener the bridge binds on the secondary world.
const ListenerCapacity = 2048

// Phase tracks the bridge through the build handshake. The ordering is
// load-bearing: the primary->secondary pass must land before the secondary
// graph is compiled (secondary system construction may read synced state),
// and the secondary->primary pass reconciles whatever that compilation
// mutated.
type Phase int

const (
	Uninitialized Phase = iota
	Prepared
	PrimarySynced
	Compiled
	Ready
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Prepared:
		return "prepared"
	case PrimarySynced:
		return "primary-synced"
	case Compiled:
		return "compiled"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// ErrPhase reports a bridge call made out of lifecycle order.
var ErrPhase = errors.New("bridge phase violation")

// Bridge keeps two independent component-storage worlds in sync during an
// incremental migration. It owns the secondary world handle, the entity
// identity mapping, and the registered syncers. Ongoing resync after Ready
// is caller-driven; the bridge never syncs on its own during a tick.
type Bridge struct {
	secondary core.World
	syncers   []Syncer
	bimap     *EntityBimap
	listener  *core.EntityListener
	phase     Phase
	logger    zerolog.Logger
}

// New creates an unprepared bridge over the given secondary world
func New(secondary core.World, syncers []Syncer, logger zerolog.Logger) *Bridge {
	return &Bridge{
		secondary: secondary,
		syncers:   syncers,
		bimap:     NewEntityBimap(),
		logger:    logger,
	}
}

// Prepare binds the lifecycle listener on the secondary world and runs every
// syncer's one-time Setup against the primary world
func (b *Bridge) Prepare(primary core.World) error {
	if b.phase != Uninitialized {
		return fmt.Errorf("%w: prepare in phase %s", ErrPhase, b.phase)
	}

	b.listener = b.secondary.EntityChannel().Bind(ListenerCapacity)
	for _, s := range b.syncers {
		if err := s.Setup(primary); err != nil {
			return fmt.Errorf("%w: %T: %w", ErrSyncerSetup, s, err)
		}
	}

	b.phase = Prepared
	b.logger.Debug().Int("syncers", len(b.syncers)).Msg("bridge prepared")
	return nil
}

// Sync runs every registered syncer once in the given direction. During the
// build handshake only the phase's own direction is legal; once Ready,
// callers may sync either direction at the points they choose. Syncer calls
// are strictly serialized and each receives only a narrow View of the bridge
// state, so no syncer can observe another's mutation in flight.
func (b *Bridge) Sync(primary core.World, dir Direction) error {
	var next Phase
	switch b.phase {
	case Prepared:
		if dir != PrimaryToSecondary {
			return fmt.Errorf("%w: %s sync in phase %s", ErrPhase, dir, b.phase)
		}
		next = PrimarySynced
	case Compiled:
		if dir != SecondaryToPrimary {
			return fmt.Errorf("%w: %s sync in phase %s", ErrPhase, dir, b.phase)
		}
		next = Ready
	case Ready:
		next = Ready
	default:
		return fmt.Errorf("%w: %s sync in phase %s", ErrPhase, dir, b.phase)
	}

	b.pump(primary)

	view := &View{secondary: b.secondary, bimap: b.bimap}
	for _, s := range b.syncers {
		if err := s.Sync(primary, view, dir); err != nil {
			return fmt.Errorf("%w: %T (%s): %w", ErrSyncerSync, s, dir, err)
		}
	}

	b.phase = next
	b.logger.Debug().Stringer("direction", dir).Int("mapped", b.bimap.Len()).Msg("bridge synced")
	return nil
}

// MarkCompiled records that the secondary graph has been compiled
func (b *Bridge) MarkCompiled() error {
	if b.phase != PrimarySynced {
		return fmt.Errorf("%w: compile in phase %s", ErrPhase, b.phase)
	}
	b.phase = Compiled
	return nil
}

// Phase returns the current lifecycle phase
func (b *Bridge) Phase() Phase {
	return b.phase
}

// Secondary returns the secondary world
func (b *Bridge) Secondary() core.World {
	return b.secondary
}

// Mapping returns the entity identity mapping
func (b *Bridge) Mapping() *EntityBimap {
	return b.bimap
}

// Close unbinds the lifecycle listener. Safe to call more than once.
func (b *Bridge) Close() {
	if b.listener == nil {
		return
	}
	b.secondary.EntityChannel().Unbind(b.listener.ID())
	b.listener = nil
}

// pump folds buffered lifecycle events into the bimap before a sync pass.
// Overflow policy: the listener drops its oldest events and counts them;
// when drops are observed the event stream can no longer be trusted, so the
// pump falls back to a full liveness scan of every pairing. Dead primary
// entities are pruned on the same scan since the primary world has no
// listener bound.
func (b *Bridge) pump(primary core.World) {
	if b.listener != nil {
		for _, ev := range b.listener.Drain() {
			if ev.Kind == core.EntityRemoved {
				b.bimap.removeBySecondary(ev.Entity)
			}
		}
		if n := b.listener.TakeDropped(); n > 0 {
			b.logger.Warn().Uint64("dropped", n).Msg("lifecycle listener overflowed, rescanning")
			b.bimap.prune(primary.Alive, b.secondary.Alive)
			return
		}
	}
	b.bimap.prune(primary.Alive, func(core.Entity) bool { return true })
}
