// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrConfirmationNotFound indicates a confirmation request was not found.
	ErrConfirmationNotFound = errors.New("confirmation request not found")

	// ErrDuplicateRun indicates a run with the same identifier already exists.
	ErrDuplicateRun = errors.New("run already exists")

	// ErrTransitionConflict indicates a compare-and-swap status transition
	// lost the race: the stored status did not match the expected status.
	ErrTransitionConflict = errors.New("run status transition conflict")
)

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op    string // Operation being performed (e.g., "GetByID", "Create", "CompareAndSwapStatus")
	RunID string // Run ID if applicable
	Err   error  // Underlying error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// EventError wraps event-log errors with additional context.
type EventError struct {
	Op    string
	RunID string
	Err   error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s event log: %v", e.Op, e.RunID, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

func (e *EventError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ConfirmationError wraps confirmation-request errors with additional context.
type ConfirmationError struct {
	Op        string
	ConfirmID string
	Err       error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("%s operation failed for confirmation %s: %v", e.Op, e.ConfirmID, e.Err)
}

func (e *ConfirmationError) Unwrap() error {
	return e.Err
}

func (e *ConfirmationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsConfirmationNotFound checks if an error indicates a confirmation request was not found.
func IsConfirmationNotFound(err error) bool {
	return errors.Is(err, ErrConfirmationNotFound)
}

// IsTransitionConflict checks if an error indicates a CAS transition loss.
func IsTransitionConflict(err error) bool {
	return errors.Is(err, ErrTransitionConflict)
}

// IsDuplicateRun checks if an error indicates the run already exists.
func IsDuplicateRun(err error) bool {
	return errors.Is(err, ErrDuplicateRun)
}
