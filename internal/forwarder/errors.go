package forwarder

import "errors"

// Domain-specific errors for command records and delivery.
var (
	// ErrRecordNotFound is returned when a record does not exist.
	ErrRecordNotFound = errors.New("forwarder: record not found")

	// ErrAlreadyProcessed is returned when an outcome is written to a
	// record that already has one.
	ErrAlreadyProcessed = errors.New("forwarder: record already processed")

	// ErrInvalidOutcome is returned when an outcome is not terminal.
	ErrInvalidOutcome = errors.New("forwarder: outcome must be done or failed")

	// ErrInvalidRecord is returned when a record fails API validation.
	ErrInvalidRecord = errors.New("forwarder: invalid record")

	// ErrStoreRequired is returned when a Forwarder is built without a store.
	ErrStoreRequired = errors.New("forwarder: store is required")
)
