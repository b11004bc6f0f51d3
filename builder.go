package dispatch

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/creastat/dispatch/bridge"
	"github.com/creastat/dispatch/core"
)

// Builder accumulates named systems, barriers, and bundles with a fluent
// API, then compiles them into an executable graph bound to a worker pool.
// Nothing is validated at call time: every call appends to a deferred
// operation log, and a single Build replays the log so that bundles expand
// in place and dependency validation sees one total order. Duplicate names
// and unknown dependencies therefore surface at Build, not at registration.
type Builder struct {
	ops    []operation
	logger zerolog.Logger

	// migration mode
	secondary    core.World
	migrationOps []operation
	syncers      []bridge.Syncer
	syncBundles  []bridge.SyncBundle
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{logger: zerolog.Nop()}
}

// Logger sets the structured logger used by Build and the runtime
func (b *Builder) Logger(l zerolog.Logger) *Builder {
	b.logger = l
	return b
}

// With registers a parallel system. A non-empty name must be unique and may
// be referenced as a dependency by later registrations; an empty name makes
// the system unreferenceable. Every dependency must name a system registered
// earlier in program order.
func (b *Builder) With(sys core.System, name string, deps ...string) *Builder {
	b.ops = append(b.ops, addSystem{sys: sys, name: name, deps: deps})
	return b
}

// WithSystemDesc registers a parallel system whose construction is deferred
// to Build, so it can read resources already placed in the world.
func (b *Builder) WithSystemDesc(desc core.SystemDesc, name string, deps ...string) *Builder {
	b.ops = append(b.ops, addSystemDesc{desc: desc, name: name, deps: deps})
	return b
}

// WithThreadLocal registers a system confined to the goroutine that calls
// Tick. Thread-local systems ignore barriers and always run after every
// parallel system, in registration order.
func (b *Builder) WithThreadLocal(sys core.ThreadLocal) *Builder {
	b.ops = append(b.ops, addThreadLocal{sys: sys})
	return b
}

// WithThreadLocalDesc registers a thread-local system with deferred
// construction.
func (b *Builder) WithThreadLocalDesc(desc core.ThreadLocalDesc) *Builder {
	b.ops = append(b.ops, addThreadLocalDesc{desc: desc})
	return b
}

// WithBarrier inserts a barrier: every system registered before it completes
// before any system registered after it starts. A barrier with no systems
// since the previous one collapses to a no-op.
func (b *Builder) WithBarrier() *Builder {
	b.ops = append(b.ops, addBarrier{})
	return b
}

// WithBundle registers a bundle. Expansion is deferred to Build; a failing
// bundle aborts the entire build with ErrBundleExpansion.
func (b *Builder) WithBundle(bundle core.Bundle) *Builder {
	b.ops = append(b.ops, addBundle{bundle: bundle})
	return b
}

// Migration attaches the secondary world and enables bridging mode. All
// Migration* registrations require it before Build.
func (b *Builder) Migration(secondary core.World) *Builder {
	b.secondary = secondary
	return b
}

// MigrationWithSystem registers a parallel system on the secondary world's
// graph. Construction is always deferred: it runs after the initial
// primary->secondary sync, so the system can read synced state.
func (b *Builder) MigrationWithSystem(desc core.SystemDesc, name string, deps ...string) *Builder {
	b.migrationOps = append(b.migrationOps, addSystemDesc{desc: desc, name: name, deps: deps})
	return b
}

// MigrationWithThreadLocal registers a thread-local system on the secondary
// world's graph.
func (b *Builder) MigrationWithThreadLocal(desc core.ThreadLocalDesc) *Builder {
	b.migrationOps = append(b.migrationOps, addThreadLocalDesc{desc: desc})
	return b
}

// MigrationWithBarrier inserts a barrier into the secondary world's graph.
func (b *Builder) MigrationWithBarrier() *Builder {
	b.migrationOps = append(b.migrationOps, addBarrier{})
	return b
}

// MigrationWithBundle registers a bundle against the secondary world's
// graph.
func (b *Builder) MigrationWithBundle(bundle core.Bundle) *Builder {
	b.migrationOps = append(b.migrationOps, addBundle{bundle: bundle})
	return b
}

// MigrationSync registers a syncer run at the bridge's sync points.
func (b *Builder) MigrationSync(s bridge.Syncer) *Builder {
	b.syncers = append(b.syncers, s)
	return b
}

// MigrationSyncBundle registers a sync bundle, expanded at the start of the
// bridge build phase.
func (b *Builder) MigrationSyncBundle(sb bridge.SyncBundle) *Builder {
	b.syncBundles = append(b.syncBundles, sb)
	return b
}

// MigrationResourceSync registers a syncer mirroring the resource type T.
// Package-level because Go methods cannot take type parameters.
func MigrationResourceSync[T any](b *Builder) *Builder {
	return b.MigrationSync(bridge.NewResourceSyncer[T]())
}

// MigrationComponentSync registers a syncer mirroring the component type T.
func MigrationComponentSync[T any](b *Builder) *Builder {
	return b.MigrationSync(bridge.NewComponentSyncer[T]())
}

// MigrationComponentSyncWith registers a merge-function syncer pairing the
// primary component type P with the secondary component type S.
func MigrationComponentSyncWith[P, S any](b *Builder, merge bridge.MergeFunc[P, S]) *Builder {
	return b.MigrationSync(bridge.NewComponentSyncerWith[P, S](merge))
}

// Build compiles the primary graph and, in bridging mode, walks the bridge
// through its build handshake: prepare, primary->secondary sync, secondary
// graph compilation, secondary->primary sync. Any validation, expansion, or
// sync failure aborts the whole build; no partial runtime is ever returned.
func (b *Builder) Build(w core.World, p core.Pool) (*Runtime, error) {
	if p == nil {
		return nil, errors.New("dispatch: Build requires a worker pool")
	}

	b.logger.Info().Int("operations", len(b.ops)).Msg("compiling graph")
	graph, locals, err := replay(b.ops, w)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	rt := &Runtime{
		graph:        graph,
		threadLocals: locals,
		pool:         p,
		logger:       b.logger,
	}

	bridging := b.secondary != nil
	if !bridging {
		if len(b.migrationOps) > 0 || len(b.syncers) > 0 || len(b.syncBundles) > 0 {
			return nil, errors.New("dispatch: migration registrations require Migration(secondary)")
		}
		return rt, nil
	}

	// Sync bundles expand first; they may add both syncers and secondary
	// systems.
	reg := &migrationRegistrar{b: b}
	for _, sb := range b.syncBundles {
		if err := sb.Setup(w, reg); err != nil {
			return nil, fmt.Errorf("dispatch: %w: %T: %w", ErrBundleExpansion, sb, err)
		}
	}

	br := bridge.New(b.secondary, b.syncers, b.logger)
	if err := br.Prepare(w); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	if err := br.Sync(w, bridge.PrimaryToSecondary); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	b.logger.Info().Int("operations", len(b.migrationOps)).Msg("compiling secondary graph")
	migrationGraph, migrationLocals, err := replay(b.migrationOps, b.secondary)
	if err != nil {
		return nil, fmt.Errorf("dispatch: secondary graph: %w", err)
	}
	if err := br.MarkCompiled(); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	if err := br.Sync(w, bridge.SecondaryToPrimary); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	rt.bridge = br
	rt.migrationGraph = migrationGraph
	rt.migrationLocals = migrationLocals
	return rt, nil
}

// migrationRegistrar lets sync bundles register syncers and secondary-world
// systems through the builder.
type migrationRegistrar struct {
	b *Builder
}

func (r *migrationRegistrar) Sync(s bridge.Syncer) {
	r.b.MigrationSync(s)
}

func (r *migrationRegistrar) System(desc core.SystemDesc, name string, deps ...string) {
	r.b.MigrationWithSystem(desc, name, deps...)
}

func (r *migrationRegistrar) ThreadLocal(desc core.ThreadLocalDesc) {
	r.b.MigrationWithThreadLocal(desc)
}
