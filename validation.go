package dispatch

import "errors"

// Compile-time taxonomy. Every member is fatal to the Build call that
// surfaces it: these represent wiring mistakes, not transient conditions, so
// no partial runtime is ever returned.
var (
	// ErrDuplicateName reports two non-empty systems sharing a name.
	ErrDuplicateName = errors.New("duplicate system name")

	// ErrUnknownDependency reports a dependency name that was never registered.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrBundleExpansion reports a failure propagated from a bundle's own
	// setup logic.
	ErrBundleExpansion = errors.New("bundle expansion failed")
)

// ErrDisposed reports use of a runtime after Dispose.
var ErrDisposed = errors.New("runtime used after dispose")
