package analytics

import (
	"errors"
	"fmt"
)

// ErrDataUnavailable a record stream could not be fetched
var ErrDataUnavailable = errors.New("data unavailable")

// ValidationError rejects a request before any fetch is attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Stream names one of the record streams fetched for a scope.
type Stream string

const (
	StreamStations    Stream = "stations"
	StreamLossRecords Stream = "loss_records"
	StreamSessions    Stream = "sessions"
)

// StreamError failure of a single stream; unwraps to both the underlying
// error and ErrDataUnavailable.
type StreamError struct {
	Stream Stream
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Stream, e.Err)
}

func (e *StreamError) Unwrap() []error {
	return []error{ErrDataUnavailable, e.Err}
}
