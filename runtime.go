package dispatch

import (
	"github.com/rs/zerolog"

	"github.com/creastat/dispatch/bridge"
	"github.com/creastat/dispatch/core"
)

// Runtime owns the compiled graphs and, in bridging mode, the bridge over
// the secondary world. The worker pool is borrowed, never owned: disposing
// the runtime does not shut the pool down.
type Runtime struct {
	graph        *CompiledGraph
	threadLocals []core.ThreadLocal

	migrationGraph  *CompiledGraph
	migrationLocals []core.ThreadLocal
	bridge          *bridge.Bridge

	pool     core.Pool
	logger   zerolog.Logger
	disposed bool
}

// Graph returns the compiled primary graph
func (r *Runtime) Graph() *CompiledGraph {
	return r.graph
}

// MigrationGraph returns the compiled secondary graph, or nil outside
// bridging mode
func (r *Runtime) MigrationGraph() *CompiledGraph {
	return r.migrationGraph
}

// Bridge returns the world bridge, or nil outside bridging mode. Ongoing
// resync is caller-driven through Bridge().Sync; Tick never syncs.
func (r *Runtime) Bridge() *bridge.Bridge {
	return r.bridge
}

// Tick runs one frame: the parallel graph on the worker pool, then the
// thread-confined sequence on the calling goroutine, then (in bridging mode)
// the secondary world's graph the same way. Tick after Dispose is a fatal
// caller error and returns ErrDisposed.
func (r *Runtime) Tick(w core.World) error {
	if r.disposed {
		return ErrDisposed
	}

	if err := runGraph(r.graph, r.pool, w, r.logger); err != nil {
		return err
	}
	if err := runThreadLocals(r.threadLocals, w, r.logger); err != nil {
		return err
	}

	if r.bridge != nil {
		sw := r.bridge.Secondary()
		if err := runGraph(r.migrationGraph, r.pool, sw, r.logger); err != nil {
			return err
		}
		if err := runThreadLocals(r.migrationLocals, sw, r.logger); err != nil {
			return err
		}
	}
	return nil
}

// Dispose runs every system's optional teardown hook exactly once and
// releases the bridge's lifecycle listener. Systems may hold non-reentrant
// external resources, so Dispose must run before the owning world is torn
// down. A second call is a no-op.
func (r *Runtime) Dispose(w core.World) {
	if r.disposed {
		return
	}
	r.disposed = true

	disposeGraph(r.graph, r.threadLocals, w)

	if r.bridge != nil {
		disposeGraph(r.migrationGraph, r.migrationLocals, r.bridge.Secondary())
		r.bridge.Close()
	}
	r.logger.Info().Msg("runtime disposed")
}

func disposeGraph(cg *CompiledGraph, locals []core.ThreadLocal, w core.World) {
	for _, n := range cg.nodes {
		if d, ok := n.sys.(core.Disposer); ok {
			d.Dispose(w)
		}
	}
	for _, tl := range locals {
		if d, ok := tl.(core.Disposer); ok {
			d.Dispose(w)
		}
	}
}
