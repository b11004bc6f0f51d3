package core

// Pool is the worker-pool collaborator boundary. The execution engine hands
// it individual node tasks and performs its own dependency bookkeeping; the
// pool owns nothing beyond max-parallelism. Implementations must run
// submitted tasks eventually and must never drop one.
type Pool interface {
	// Submit schedules task for asynchronous execution.
	Submit(task func())

	// Size returns the maximum number of tasks the pool runs concurrently.
	Size() int
}
