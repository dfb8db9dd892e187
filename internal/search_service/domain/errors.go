package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a referenced search or user does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrLimitExceeded indicates that the owner already has an active search.
	ErrLimitExceeded = errors.New("active search limit exceeded")
	// ErrInvalidCriteria indicates that search criteria failed validation.
	ErrInvalidCriteria = errors.New("invalid search criteria")
	// ErrFetchFailure indicates that the listing source could not be queried.
	ErrFetchFailure = errors.New("listing fetch failed")
	// ErrDeliveryFailure indicates that a notification was not delivered.
	ErrDeliveryFailure = errors.New("listing delivery failed")
	// ErrPassInProgress indicates that a scheduler pass is already running.
	ErrPassInProgress = errors.New("scheduler pass already in progress")
)

// ValidationError describes a rejected criteria field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid search criteria: %s", e.Reason)
	}
	return fmt.Sprintf("invalid search criteria: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidCriteria }
