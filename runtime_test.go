package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"github.com/creastat/dispatch/core"
	"github.com/creastat/dispatch/pool"
	"github.com/creastat/dispatch/world"
)

// recorder captures start/done marks from concurrently running systems
type recorder struct {
	mu    sync.Mutex
	marks []string
}

func (r *recorder) mark(m string) {
	r.mu.Lock()
	r.marks = append(r.marks, m)
	r.mu.Unlock()
}

func (r *recorder) index(m string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range r.marks {
		if v == m {
			return i
		}
	}
	return -1
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.marks = nil
	r.mu.Unlock()
}

func (r *recorder) system(name string) core.System {
	return core.SystemFunc(func(core.World) error {
		r.mark(name + ":start")
		r.mark(name + ":done")
		return nil
	})
}

func (r *recorder) local(name string) core.ThreadLocal {
	return core.ThreadLocalFunc(func(core.World) error {
		r.mark(name)
		return nil
	})
}

// requireBefore asserts mark a happened strictly before mark b
func requireBefore(t testing.TB, r *recorder, a, b string) {
	t.Helper()
	ia, ib := r.index(a), r.index(b)
	if ia < 0 || ib < 0 {
		t.Fatalf("missing marks %q(%d) %q(%d) in %v", a, ia, b, ib, r.marks)
	}
	if ia >= ib {
		t.Fatalf("%q must precede %q, order: %v", a, b, r.marks)
	}
}

// TestTickChainOrder tests the load -> physics -> render chain: dependency
// order holds on every tick for any pool size
func TestTickChainOrder(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			w := world.New()
			rec := &recorder{}

			rt, err := NewBuilder().
				With(rec.system("load"), "load").
				With(rec.system("physics"), "physics", "load").
				With(rec.system("render"), "render", "physics").
				Build(w, pool.New(workers))
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}

			for tick := 0; tick < 5; tick++ {
				rec.reset()
				if err := rt.Tick(w); err != nil {
					t.Fatalf("tick %d failed: %v", tick, err)
				}
				requireBefore(t, rec, "load:done", "physics:start")
				requireBefore(t, rec, "physics:done", "render:start")
			}
			rt.Dispose(w)
		})
	}
}

// TestBarrierExecutionOrder tests that a system after a barrier starts only
// after every pre-barrier system completed
func TestBarrierExecutionOrder(t *testing.T) {
	w := world.New()
	rec := &recorder{}

	rt, err := NewBuilder().
		With(rec.system("a"), "a").
		With(rec.system("b"), "b").
		WithBarrier().
		With(rec.system("c"), "c").
		Build(w, pool.New(4))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if err := rt.Tick(w); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	requireBefore(t, rec, "a:done", "c:start")
	requireBefore(t, rec, "b:done", "c:start")
}

// TestThreadLocalsRunLast tests that thread-local systems run after every
// parallel system, in registration order, including over an empty graph
func TestThreadLocalsRunLast(t *testing.T) {
	w := world.New()
	rec := &recorder{}

	rt, err := NewBuilder().
		WithThreadLocal(rec.local("tl-1")).
		With(rec.system("a"), "a").
		With(rec.system("b"), "b").
		WithThreadLocal(rec.local("tl-2")).
		Build(w, pool.New(4))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := rt.Tick(w); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	requireBefore(t, rec, "a:done", "tl-1")
	requireBefore(t, rec, "b:done", "tl-1")
	requireBefore(t, rec, "tl-1", "tl-2")

	// Thread-locals alone still run.
	rec2 := &recorder{}
	rt2, err := NewBuilder().
		WithThreadLocal(rec2.local("only")).
		Build(w, pool.New(1))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := rt2.Tick(w); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if rec2.index("only") != 0 {
		t.Fatalf("thread-local did not run over empty graph: %v", rec2.marks)
	}
}

// Dependency order holds for arbitrary valid graphs and a parallel pool: no
// system starts before all of its declared dependencies are done.
func TestPropertyDependencyOrderUnderParallelism(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(1, 10).Draw(rt, "count")

		w := world.New()
		rec := &recorder{}
		b := NewBuilder()

		declared := make(map[string][]string)
		for i := 0; i < count; i++ {
			name := fmt.Sprintf("s%d", i)
			var deps []string
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(rt, fmt.Sprintf("dep-%d-%d", i, j)) {
					deps = append(deps, fmt.Sprintf("s%d", j))
				}
			}
			declared[name] = deps
			b.With(rec.system(name), name, deps...)
		}

		runtime, err := b.Build(w, pool.New(4))
		if err != nil {
			rt.Fatalf("Build failed: %v", err)
		}
		if err := runtime.Tick(w); err != nil {
			rt.Fatalf("Tick failed: %v", err)
		}

		for name, deps := range declared {
			for _, dep := range deps {
				ia, ib := rec.index(dep+":done"), rec.index(name+":start")
				if ia < 0 || ib < 0 || ia >= ib {
					rt.Fatalf("%s started before %s completed: %v", name, dep, rec.marks)
				}
			}
		}
	})
}

// TestFailedSystemSkipsDependents tests that a failing system stops its
// dependents but not independent branches, and the root cause surfaces
func TestFailedSystemSkipsDependents(t *testing.T) {
	w := world.New()
	rec := &recorder{}
	boom := errors.New("corrupt chunk")

	rt, err := NewBuilder().
		With(core.SystemFunc(func(core.World) error { return boom }), "load").
		With(rec.system("physics"), "physics", "load").
		With(rec.system("audio"), "audio").
		Build(w, pool.New(2))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	err = rt.Tick(w)
	if !errors.Is(err, boom) {
		t.Fatalf("expected root cause in error chain, got %v", err)
	}
	if !strings.Contains(err.Error(), "load") {
		t.Fatalf("error must name the failed system, got %v", err)
	}
	if rec.index("physics:start") != -1 {
		t.Fatal("dependent of a failed system must not run")
	}
	if rec.index("audio:done") == -1 {
		t.Fatal("independent system must still run")
	}
}

// TestPanicBecomesError tests that a panicking system fails the tick instead
// of crashing the pool
func TestPanicBecomesError(t *testing.T) {
	w := world.New()

	rt, err := NewBuilder().
		With(core.SystemFunc(func(core.World) error { panic("index out of range") }), "broken").
		Build(w, pool.New(1))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	err = rt.Tick(w)
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic converted to error, got %v", err)
	}
}

// mirrorBundle registers one named system on whatever graph expands it
type mirrorBundle struct {
	rec *recorder
}

func (b mirrorBundle) Setup(_ core.World, r core.Registrar) error {
	r.Register(b.rec.system("m-first"), "m-first")
	return nil
}

// TestDeferredRegistrationFamiliesTickOrder tests the deferred-construction
// registrations end to end: a primary thread-local desc, a migration bundle,
// a migration barrier, and a migration thread-local, all observed in one tick
func TestDeferredRegistrationFamiliesTickOrder(t *testing.T) {
	primary := world.New()
	secondary := world.New()
	rec := &recorder{}

	primaryTL := core.ThreadLocalDesc(func(core.World) (core.ThreadLocal, error) {
		return rec.local("primary-tl"), nil
	})
	migrationTL := core.ThreadLocalDesc(func(core.World) (core.ThreadLocal, error) {
		return rec.local("migration-tl"), nil
	})
	second := core.SystemDesc(func(core.World) (core.System, error) {
		return rec.system("m-second"), nil
	})

	rt, err := NewBuilder().
		With(rec.system("primary-sys"), "primary-sys").
		WithThreadLocalDesc(primaryTL).
		Migration(secondary).
		MigrationWithBundle(mirrorBundle{rec: rec}).
		MigrationWithBarrier().
		MigrationWithSystem(second, "m-second").
		MigrationWithThreadLocal(migrationTL).
		Build(primary, pool.New(2))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer rt.Dispose(primary)

	if !rt.MigrationGraph().DependsOn("m-second", "m-first") {
		t.Fatal("migration barrier must order m-second after m-first")
	}

	if err := rt.Tick(primary); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	requireBefore(t, rec, "primary-sys:done", "primary-tl")
	requireBefore(t, rec, "primary-tl", "m-first:start")
	requireBefore(t, rec, "m-first:done", "m-second:start")
	requireBefore(t, rec, "m-second:done", "migration-tl")
}

// disposableSystem counts teardown invocations
type disposableSystem struct {
	disposed *int
}

func (disposableSystem) Run(core.World) error { return nil }
func (d disposableSystem) Dispose(core.World) { *d.disposed++ }

// TestDisposeRunsTeardownOnce tests that disposal releases each system exactly
// once and a second call is a no-op
func TestDisposeRunsTeardownOnce(t *testing.T) {
	w := world.New()
	var count int

	rt, err := NewBuilder().
		With(disposableSystem{disposed: &count}, "holder").
		Build(w, pool.New(1))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	rt.Dispose(w)
	rt.Dispose(w)
	if count != 1 {
		t.Fatalf("expected exactly one teardown, got %d", count)
	}
}

// TestTickAfterDisposeFails tests the post-dispose contract
func TestTickAfterDisposeFails(t *testing.T) {
	w := world.New()

	rt, err := NewBuilder().With(nopSystem{}, "a").Build(w, pool.New(1))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	rt.Dispose(w)
	if err := rt.Tick(w); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}
