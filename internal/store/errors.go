package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrJobNotFound indicates that the requested job does not exist in the ledger.
	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)

	// ErrResultNotFound indicates that no cached result exists for a stage and fingerprint.
	ErrResultNotFound = fmt.Errorf("%w: result", ErrNotFound)

	// ErrJobNotActive indicates that a transition was attempted on a job that
	// is already completed or failed. Terminal jobs only change by deletion.
	ErrJobNotActive = fmt.Errorf("%w: job is not pending or processing", ErrUpdateFailed)
)
