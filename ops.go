package dispatch

import (
	"fmt"

	"github.com/creastat/dispatch/core"
)

// operation is a single deferred construction action. Builder calls only
// record operations; nothing touches the graph until Build replays the log
// in call order against an empty graph builder. The replay order is the
// total order that dependency validation and barrier semantics are defined
// over, and it lets bundles expand into the same single compilation pass.
type operation interface {
	exec(w core.World, gb *graphBuilder) error
}

type addSystem struct {
	sys  core.System
	name string
	deps []string
}

func (op addSystem) exec(w core.World, gb *graphBuilder) error {
	return gb.addNode(op.name, op.deps, op.sys)
}

type addSystemDesc struct {
	desc core.SystemDesc
	name string
	deps []string
}

func (op addSystemDesc) exec(w core.World, gb *graphBuilder) error {
	sys, err := op.desc(w)
	if err != nil {
		return fmt.Errorf("constructing system %q: %w", op.name, err)
	}
	return gb.addNode(op.name, op.deps, sys)
}

type addThreadLocal struct {
	sys core.ThreadLocal
}

func (op addThreadLocal) exec(_ core.World, gb *graphBuilder) error {
	gb.addThreadLocal(op.sys)
	return nil
}

type addThreadLocalDesc struct {
	desc core.ThreadLocalDesc
}

func (op addThreadLocalDesc) exec(w core.World, gb *graphBuilder) error {
	sys, err := op.desc(w)
	if err != nil {
		return fmt.Errorf("constructing thread-local system: %w", err)
	}
	gb.addThreadLocal(sys)
	return nil
}

type addBarrier struct{}

func (op addBarrier) exec(_ core.World, gb *graphBuilder) error {
	gb.barrier()
	return nil
}

type addBundle struct {
	bundle core.Bundle
}

func (op addBundle) exec(w core.World, gb *graphBuilder) error {
	r := &execRegistrar{w: w, gb: gb}
	if err := op.bundle.Setup(w, r); err != nil {
		return fmt.Errorf("%w: %T: %w", ErrBundleExpansion, op.bundle, err)
	}
	return r.err
}

// execRegistrar applies a bundle's registrations at the bundle's position in
// the log, so expanded systems order exactly where the bundle was registered.
// The first failed registration sticks; later calls become no-ops.
type execRegistrar struct {
	w   core.World
	gb  *graphBuilder
	err error
}

func (r *execRegistrar) Register(sys core.System, name string, deps ...string) {
	if r.err != nil {
		return
	}
	r.err = r.gb.addNode(name, deps, sys)
}

func (r *execRegistrar) RegisterDesc(desc core.SystemDesc, name string, deps ...string) {
	if r.err != nil {
		return
	}
	r.err = addSystemDesc{desc: desc, name: name, deps: deps}.exec(r.w, r.gb)
}

func (r *execRegistrar) RegisterThreadLocal(sys core.ThreadLocal) {
	if r.err != nil {
		return
	}
	r.gb.addThreadLocal(sys)
}

func (r *execRegistrar) Barrier() {
	if r.err != nil {
		return
	}
	r.gb.barrier()
}

func (r *execRegistrar) Bundle(b core.Bundle) error {
	if r.err != nil {
		return r.err
	}
	r.err = addBundle{bundle: b}.exec(r.w, r.gb)
	return r.err
}
