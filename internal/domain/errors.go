package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLockUnavailable means another polling pass currently holds the
	// resource. Expected under contention; the caller skips the cycle.
	ErrLockUnavailable = errors.New("resource lock unavailable")

	// ErrNotFound is returned by repositories for missing records.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a create would violate the unique
	// notification name invariant.
	ErrDuplicate = errors.New("duplicate")
)

// ServiceError marks a testing-service failure as transient and
// per-resource, so status aggregation records it as an availability
// issue instead of aborting the scan.
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("testing service %s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
