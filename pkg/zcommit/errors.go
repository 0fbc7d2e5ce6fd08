package zcommit

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRequest reports a submission URL whose path cannot be read as key/value pairs.
	ErrMalformedRequest = errors.New("invalid submission URL")
	// ErrMissingRequiredField reports an absent class or instance.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrInvalidPayload reports a push payload that is not JSON or lacks ref/commits.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrMalformedCommit reports a single commit that cannot be turned into a notification.
	ErrMalformedCommit = errors.New("malformed commit")
	// ErrDispatchFailure reports a notification the delivery command did not accept.
	ErrDispatchFailure = errors.New("dispatch failure")
)

// FieldError names the required field that was missing from a request.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingRequiredField, e.Field)
}

func (e *FieldError) Unwrap() error {
	return ErrMissingRequiredField
}

func missingField(name string) error {
	return &FieldError{Field: name}
}

// CommitError ties a per-commit failure to its position in the payload.
type CommitError struct {
	Index    int
	CommitID string
	Err      error
}

func (e *CommitError) Error() string {
	id := e.CommitID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("commit %d (%s): %v", e.Index, id, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// IsRequestFatal reports whether err rejects the whole request before anything is sent.
func IsRequestFatal(err error) bool {
	return errors.Is(err, ErrMalformedRequest) ||
		errors.Is(err, ErrMissingRequiredField) ||
		errors.Is(err, ErrInvalidPayload)
}

func malformedCommit(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedCommit, fmt.Sprintf(format, args...))
}
