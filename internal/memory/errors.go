package memory

import "github.com/pkg/errors"

var (
	// ErrOutOfMemory is returned by drivers when a device allocation fails.
	ErrOutOfMemory = errors.New("device out of memory")

	// ErrAllocationFailure is returned when every allocation step failed.
	ErrAllocationFailure = errors.New("allocation failure")

	// ErrUnknownDevice is returned for a device that was never registered.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrReleasedRef is returned when a released reference is retained.
	ErrReleasedRef = errors.New("reference released")

	// ErrInvalidPointer is returned by drivers for pointers they did not issue.
	ErrInvalidPointer = errors.New("invalid device pointer")
)
