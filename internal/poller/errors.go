package poller

import (
	"fmt"
	"time"
	"vidscribe/internal/speech"
)

// TimeoutError is returned when the attempt or wall-clock bound is reached
// before the operation completes.
type TimeoutError struct {
	Operation string
	Attempts  int
	Elapsed   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s not done after %d status checks (%s)", e.Operation, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

// CancelledError is returned when the caller's context ends the wait.
type CancelledError struct {
	Operation string
	Err       error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("waiting for operation %s cancelled: %v", e.Operation, e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// OperationFailedError is returned when the service finishes the operation with an error.
type OperationFailedError struct {
	Operation string
	Err       *speech.OperationError
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("recognition failed for %s: %v", e.Operation, e.Err)
}

func (e *OperationFailedError) Unwrap() error {
	return e.Err
}
