package backend

import (
	"errors"
	"fmt"
)

// TransportError indicates the endpoint was unreachable or returned a
// retryable status (timeout, 408, 429, 5xx). It is retried with exponential
// backoff up to the attempt budget before being surfaced.
type TransportError struct {
	Backend string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ModelError indicates the endpoint answered but the answer is unusable: a
// non-retryable error status or a payload that does not decode. It is never
// retried.
type ModelError struct {
	Backend string
	Status  int
	Body    string
	Err     error
}

func (e *ModelError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: model error: status %d: %s", e.Backend, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: model error: %v", e.Backend, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsModel reports whether err is (or wraps) a ModelError.
func IsModel(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}

// retryableStatus reports whether an HTTP status should be treated as a
// transport failure and retried.
func retryableStatus(status int) bool {
	return status == 408 || status == 429 || (status >= 500 && status <= 599)
}
