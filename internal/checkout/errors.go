package checkout

import (
	"errors"
	"fmt"
)

// ErrSubmissionInFlight is returned when Submit is called while another
// submission holds the latch. The caller is rejected, never queued.
var ErrSubmissionInFlight = errors.New("order submission already in flight")

// ValidationError is malformed user input, rejected before any network
// call and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a pre-network validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
