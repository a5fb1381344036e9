package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotFoundOrInactive is returned when a target is missing or disabled at check time.
	ErrNotFoundOrInactive = errors.New("target not found or inactive")
	// ErrCheckInProgress is returned when another pass holds the target's lock.
	ErrCheckInProgress = errors.New("check already in progress")
)

// FetchError reports that every fetch strategy failed.
type FetchError struct {
	Reason   string
	Attempts int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempt(s): %s", e.Attempts, e.Reason)
}

// DeliveryError reports a failed or misconfigured notification transport.
type DeliveryError struct {
	Reason string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery failed: %s: %v", e.Reason, e.Err)
	}
	return "delivery failed: " + e.Reason
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// StorageError wraps a persistence failure with the operation that caused it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
