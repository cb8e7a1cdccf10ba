// Package errors provides error handling for reposcout.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// Usage:
//
//	if err := client.Fetch(ctx, owner, repo, path); err != nil {
//	    return errors.Wrap(err, "fetch manifest")
//	}
//
//	return errors.WithHint(err, "set SCOUT_GITHUB_TOKEN to raise the rate limit")
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
	Mark               = crdb.Mark
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Sentinel errors shared across reposcout.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates a remote resource definitively does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrRateLimited indicates the remote API throttled the request
	ErrRateLimited = New("rate limited")

	// ErrTransient indicates a retryable remote failure (network, 5xx, unexpected status)
	ErrTransient = New("transient remote failure")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")

	// ErrToolFailed indicates the sandboxed analysis tool could not produce a result
	ErrToolFailed = New("tool execution failed")

	// ErrNoCandidates indicates a mandatory stage produced no output at all
	ErrNoCandidates = New("no candidates")

	// ErrInvariant indicates a stage broke a collection invariant (duplicate key, non-monotonic filter)
	ErrInvariant = New("pipeline invariant violated")
)

// IsRetryable reports whether err is a transient or rate-limit failure.
func IsRetryable(err error) bool {
	return err != nil && IsAny(err, ErrTransient, ErrRateLimited, ErrTimeout)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}

// NewInvariantError creates an invariant-violation error with a formatted message
func NewInvariantError(format string, args ...interface{}) error {
	return Wrap(ErrInvariant, Newf(format, args...).Error())
}
