package inference

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports that a caller-supplied inference deadline elapsed.
// Inference is read-only, so no partial state is left behind; the caller
// may retry with fewer query nodes or a longer deadline.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("inference deadline exceeded after %s", e.Elapsed)
}

// Unwrap ties the error into the context cancellation chain so callers
// can match errors.Is(err, context.DeadlineExceeded).
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}
