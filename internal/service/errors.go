package service

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable matches every transport-level forwarding failure.
var ErrUpstreamUnavailable = errors.New("service unavailable")

// ErrFileTooLarge is returned for a file above the configured size cap.
var ErrFileTooLarge = errors.New("File too large")

// UnavailableError reports that an upstream could not be reached at all
// (connect, DNS, timeout).
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return "Service unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports ErrUpstreamUnavailable as a match.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// UpstreamError is a non-200 response. StatusCode is relayed verbatim.
type UpstreamError struct {
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Detail)
}

// InternalError covers every other forwarding failure.
type InternalError struct {
	Detail string
	Err    error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return "Internal server error: " + e.Detail
	}
	return fmt.Sprintf("Internal server error: %s: %v", e.Detail, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// StorageError reports that an upload could not be staged on local disk.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("Failed to save file: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func internalf(err error, format string, args ...any) *InternalError {
	return &InternalError{Detail: fmt.Sprintf(format, args...), Err: err}
}
