package core

// System is a parallel-eligible unit of work executed once per tick with
// access to the world it was registered against.
type System interface {
	Run(w World) error
}

// ThreadLocal is a unit of work that must run on the goroutine that called
// Tick, typically to satisfy thread-affine vendor APIs. Thread-local systems
// always run sequentially after every parallel system has completed.
type ThreadLocal interface {
	RunLocal(w World) error
}

// Disposer is an optional hook for systems that hold non-reentrant external
// resources. The runtime invokes it exactly once during disposal, before the
// owning world is torn down.
type Disposer interface {
	Dispose(w World)
}

// SystemDesc defers system construction to graph compilation, so the system
// can read resources the preceding build phases have already placed in the
// world.
type SystemDesc func(w World) (System, error)

// ThreadLocalDesc defers thread-local construction to graph compilation.
type ThreadLocalDesc func(w World) (ThreadLocal, error)

// SystemFunc adapts a plain function to the System interface.
type SystemFunc func(w World) error

func (f SystemFunc) Run(w World) error { return f(w) }

// ThreadLocalFunc adapts a plain function to the ThreadLocal interface.
type ThreadLocalFunc func(w World) error

func (f ThreadLocalFunc) RunLocal(w World) error { return f(w) }

// Registrar is the surface a Bundle registers against during expansion. It is
// the deferred counterpart of the builder's own registration calls: every
// registration lands in the same operation log and is validated in the same
// compilation pass.
type Registrar interface {
	Register(sys System, name string, deps ...string)
	RegisterDesc(desc SystemDesc, name string, deps ...string)
	RegisterThreadLocal(sys ThreadLocal)
	Barrier()
	Bundle(b Bundle) error
}

// Bundle groups a set of related registrations. Expansion runs during graph
// compilation and may itself register further bundles; any error it returns
// aborts the entire build.
type Bundle interface {
	Setup(w World, r Registrar) error
}

// BundleFunc adapts a plain function to the Bundle interface.
type BundleFunc func(w World, r Registrar) error

func (f BundleFunc) Setup(w World, r Registrar) error { return f(w, r) }
