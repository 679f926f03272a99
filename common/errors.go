package common

import (
	"errors"
	"fmt"
)

// The worker distinguishes two failure kinds. Retryable errors are
// infrastructure faults (S3, SQS, DynamoDB) that may succeed on a later
// delivery; the queue message is left alone so visibility expiry redelivers
// it. NonRetryable errors are deterministic data or configuration faults;
// they are written to the run record and the message is deleted.

// RetryableError wraps an infrastructure fault that may succeed on retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a RetryableError. A nil err returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// NonRetryableError is a deterministic failure carrying the run-level error
// code that ends up on the run record.
type NonRetryableError struct {
	Code    string
	Message string
}

func (e *NonRetryableError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NonRetryable builds a NonRetryableError with the given code and message.
func NonRetryable(code, message string) error {
	return &NonRetryableError{Code: code, Message: message}
}

// IsRetryable reports whether err is (or wraps) a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// AsNonRetryable returns the NonRetryableError wrapped by err, if any.
func AsNonRetryable(err error) (*NonRetryableError, bool) {
	var nre *NonRetryableError
	if errors.As(err, &nre) {
		return nre, true
	}
	return nil, false
}
