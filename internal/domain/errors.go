package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrProvisioning     = errors.New("index provisioning failed")
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrIndexNotFound is returned by stores for operations on a missing index.
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexExists is returned by stores when creating an index that already exists.
	ErrIndexExists = errors.New("index already exists")
	// ErrIndexNotReady is reported while the index has not been provisioned.
	ErrIndexNotReady = errors.New("index not ready")
)

// ValidationError rejects malformed caller input at the boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ProvisioningError reports that the index could not be created or made ready.
type ProvisioningError struct {
	Index string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision index %q: %v", e.Index, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

func (e *ProvisioningError) Is(target error) bool { return target == ErrProvisioning }

// StoreUnavailableError wraps failures reaching the store, the embedding
// provider or the reranker.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

// NotFoundError is returned when tearing down an index that does not exist.
type NotFoundError struct {
	Index string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("index %q not found", e.Index)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrIndexNotFound }
