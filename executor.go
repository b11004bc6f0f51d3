package dispatch

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/creastat/dispatch/core"
	"github.com/rs/zerolog"
)

type nodeStatus int

const (
	statusWaiting nodeStatus = iota
	statusDone
	statusFailed
	statusSkipped
)

type nodeResult struct {
	index int
	err   error
}

// runGraph dispatches every parallel node on the pool, releasing a node only
// once all of its dependency edges have completed, and joins before
// returning. Bookkeeping stays on the calling goroutine: workers only run
// payloads and report back, so dependency counters need no locking. A failed
// node's dependents are skipped rather than run against a broken
// precondition; there is no cancellation, every already-released node runs
// to completion.
func runGraph(cg *CompiledGraph, pool core.Pool, w core.World, logger zerolog.Logger) error {
	total := cg.Len()
	if total == 0 {
		return nil
	}

	pending := make([]int, total)
	status := make([]nodeStatus, total)
	errs := make([]error, total)
	results := make(chan nodeResult, total)

	submit := func(n *graphNode) {
		pool.Submit(func() {
			results <- nodeResult{index: n.index, err: runNode(n, w)}
		})
	}

	// Dependents of a failed node can never have been released, so marking
	// them terminal here cannot race a running payload.
	remaining := total
	var skip func(n *graphNode)
	skip = func(n *graphNode) {
		for _, d := range n.dependents {
			if status[d.index] != statusWaiting {
				continue
			}
			logger.Warn().Str("system", d.name).Str("dependency", n.name).
				Msg("skipping system, upstream failed")
			status[d.index] = statusSkipped
			remaining--
			skip(d)
		}
	}

	for _, n := range cg.nodes {
		pending[n.index] = len(n.edges)
		if pending[n.index] == 0 {
			submit(n)
		}
	}

	for remaining > 0 {
		res := <-results
		remaining--
		n := cg.nodes[res.index]

		if res.err != nil {
			logger.Error().Str("system", n.name).Err(res.err).Msg("system failed")
			status[n.index] = statusFailed
			errs[n.index] = res.err
			skip(n)
			continue
		}

		status[n.index] = statusDone
		logger.Debug().Str("system", n.name).Msg("system complete")

		for _, d := range n.dependents {
			if status[d.index] != statusWaiting {
				continue
			}
			pending[d.index]--
			if pending[d.index] == 0 {
				submit(d)
			}
		}
	}

	var failed []string
	var rootCause error
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed = append(failed, nodeLabel(cg.nodes[i]))
		if rootCause == nil {
			rootCause = err
		}
	}
	if rootCause != nil {
		return fmt.Errorf("graph execution failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}
	return nil
}

// runNode executes a single payload, converting panics into errors so one
// broken system cannot take down the pool.
func runNode(n *graphNode, w core.World) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			sz := runtime.Stack(buf, false)
			err = fmt.Errorf("system %s panicked: %v\nstack trace:\n%s", nodeLabel(n), r, buf[:sz])
		}
	}()
	return n.sys.Run(w)
}

// runThreadLocals executes the thread-confined sequence strictly in
// registration order on the calling goroutine, stopping at the first failure.
func runThreadLocals(locals []core.ThreadLocal, w core.World, logger zerolog.Logger) error {
	for i, tl := range locals {
		if err := runThreadLocal(tl, w); err != nil {
			logger.Error().Int("position", i).Err(err).Msg("thread-local system failed")
			return fmt.Errorf("thread-local system %d: %w", i, err)
		}
		logger.Debug().Int("position", i).Msg("thread-local system complete")
	}
	return nil
}

func runThreadLocal(tl core.ThreadLocal, w core.World) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			sz := runtime.Stack(buf, false)
			err = fmt.Errorf("panicked: %v\nstack trace:\n%s", r, buf[:sz])
		}
	}()
	return tl.RunLocal(w)
}

func nodeLabel(n *graphNode) string {
	if n.name == "" {
		return fmt.Sprintf("(unnamed #%d)", n.index)
	}
	return fmt.Sprintf("%q", n.name)
}
