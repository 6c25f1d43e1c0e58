package shared

import "errors"

var (
	// ErrInvalidArgument indicates malformed subject/object/relation input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPermissionDenied indicates a policy denial.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrMissingResource indicates a guarded object id that could not be resolved.
	ErrMissingResource = errors.New("missing resource")
	// ErrUnavailable indicates a transient datastore failure.
	ErrUnavailable = errors.New("unavailable")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// Retryable reports whether the caller may retry the failed operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
