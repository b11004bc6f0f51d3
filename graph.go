package dispatch

import (
	"fmt"

	"github.com/creastat/dispatch/core"
)

// graphNode is a parallel system in the compiled graph. Edges hold both the
// explicit named dependencies and the implicit edges barriers introduce.
type graphNode struct {
	// index is the node's position in registration order
	index int

	// name is the unique identifier, or "" for an unreferenceable node
	name string

	// sys is the system executed for this node
	sys core.System

	// edges are the dependency nodes that must complete first
	edges []*graphNode

	// dependents are the nodes waiting on this one
	dependents []*graphNode

	// ancestors is the transitive closure of edges, used to avoid
	// redundant barrier edges
	ancestors map[*graphNode]struct{}
}

// Name returns the node's name
func (n *graphNode) Name() string {
	return n.name
}

// Dependencies returns the names of the node's dependency edges, explicit
// and barrier-implied, in edge order
func (n *graphNode) Dependencies() []string {
	deps := make([]string, 0, len(n.edges))
	for _, e := range n.edges {
		deps = append(deps, e.name)
	}
	return deps
}

// graphBuilder accumulates nodes while the operation log is replayed. It
// tracks barrier generations: each node belongs to the generation open at
// registration time, and the first nodes of a new generation implicitly
// depend on the whole previous generation unless their explicit dependencies
// already cover it transitively.
type graphBuilder struct {
	nodes        []*graphNode
	byName       map[string]*graphNode
	generations  [][]*graphNode
	threadLocals []core.ThreadLocal
}

func newGraphBuilder() *graphBuilder {
	return &graphBuilder{
		byName:      make(map[string]*graphNode),
		generations: [][]*graphNode{nil},
	}
}

// addNode registers a parallel system. A non-empty name must be unique; every
// dependency must name a previously registered system. Because dependencies
// can only point backwards, the graph is acyclic by construction.
func (gb *graphBuilder) addNode(name string, deps []string, sys core.System) error {
	if name != "" {
		if _, exists := gb.byName[name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
	}

	n := &graphNode{
		index:     len(gb.nodes),
		name:      name,
		sys:       sys,
		ancestors: make(map[*graphNode]struct{}),
	}

	for _, dep := range deps {
		target, exists := gb.byName[dep]
		if !exists {
			return fmt.Errorf("%w: %q (required by %q)", ErrUnknownDependency, dep, name)
		}
		gb.attach(n, target)
	}

	// Nodes registered after a barrier wait for the entire previous
	// generation. Skip the members the explicit dependencies already cover
	// so no redundant edges are committed.
	gen := len(gb.generations) - 1
	if gen > 0 {
		for _, prev := range gb.generations[gen-1] {
			if _, covered := n.ancestors[prev]; !covered {
				gb.attach(n, prev)
			}
		}
	}

	for _, e := range n.edges {
		e.dependents = append(e.dependents, n)
	}

	gb.nodes = append(gb.nodes, n)
	gb.generations[gen] = append(gb.generations[gen], n)
	if name != "" {
		gb.byName[name] = n
	}
	return nil
}

// attach adds a dependency edge and folds the target's ancestry into n's
func (gb *graphBuilder) attach(n, target *graphNode) {
	n.edges = append(n.edges, target)
	n.ancestors[target] = struct{}{}
	for a := range target.ancestors {
		n.ancestors[a] = struct{}{}
	}
}

// barrier opens a new generation. A barrier directly after another barrier,
// or before any system was registered, collapses to a no-op so it never
// produces spurious edges.
func (gb *graphBuilder) barrier() {
	if len(gb.generations[len(gb.generations)-1]) == 0 {
		return
	}
	gb.generations = append(gb.generations, nil)
}

// addThreadLocal appends a thread-confined system. Thread-locals bypass the
// graph and barrier generations entirely; they run after every parallel
// system, in registration order.
func (gb *graphBuilder) addThreadLocal(sys core.ThreadLocal) {
	gb.threadLocals = append(gb.threadLocals, sys)
}

// compile seals the builder into an immutable graph
func (gb *graphBuilder) compile() *CompiledGraph {
	return &CompiledGraph{nodes: gb.nodes}
}

// CompiledGraph is the immutable, validated, dependency-ordered executable
// form of the registered parallel systems.
type CompiledGraph struct {
	nodes []*graphNode
}

// Len returns the number of parallel nodes
func (cg *CompiledGraph) Len() int {
	return len(cg.nodes)
}

// Node returns the named node, or nil for unknown and empty names
func (cg *CompiledGraph) Node(name string) *graphNode {
	if name == "" {
		return nil
	}
	for _, n := range cg.nodes {
		if n.name == name {
			return n
		}
	}
	return nil
}

// Names returns all non-empty node names in registration order
func (cg *CompiledGraph) Names() []string {
	names := make([]string, 0, len(cg.nodes))
	for _, n := range cg.nodes {
		if n.name != "" {
			names = append(names, n.name)
		}
	}
	return names
}

// DependsOn reports whether the named node transitively depends on dep
func (cg *CompiledGraph) DependsOn(name, dep string) bool {
	n := cg.Node(name)
	d := cg.Node(dep)
	if n == nil || d == nil {
		return false
	}
	_, ok := n.ancestors[d]
	return ok
}

// replay runs the operation log in order against a fresh builder and returns
// the compiled graph plus the ordered thread-confined sequence. Any failure
// aborts compilation with the offending operation's error; no partial graph
// escapes.
func replay(ops []operation, w core.World) (*CompiledGraph, []core.ThreadLocal, error) {
	gb := newGraphBuilder()
	for _, op := range ops {
		if err := op.exec(w, gb); err != nil {
			return nil, nil, err
		}
	}
	return gb.compile(), gb.threadLocals, nil
}
