// Package domainerrors provides coded errors for the face authentication core.
// Services return these so transport and audit layers can branch on the code
// without string matching. Business rejections and infrastructure faults share
// the same shape; the code tells them apart.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the class of a domain error.
type Code string

const (
	// Business rejections. These are expected pipeline outcomes: they are
	// recorded as failed match attempts and returned as typed errors, never
	// surfaced as generic faults.
	CodeInsufficientCapture Code = "insufficient_capture_data"
	CodeLivenessFailed      Code = "liveness_failed"
	CodeReplayDetected      Code = "replay_detected"
	CodeDuplicateIdentity   Code = "duplicate_identity"
	CodeNoMatch             Code = "no_match"
	CodeLowConfidence       Code = "low_confidence"
	CodeIdentityMismatch    Code = "identity_mismatch"

	// Infrastructure faults.
	CodeIntegrity   Code = "integrity_error"
	CodeUnavailable Code = "backend_unavailable"
	CodeTimeout     Code = "timeout"

	// Generic codes shared across layers.
	CodeInvalidInput Code = "invalid_input"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"
)

// businessCodes are the outcomes the pipeline treats as rejections rather
// than faults.
var businessCodes = map[Code]bool{
	CodeInsufficientCapture: true,
	CodeLivenessFailed:      true,
	CodeReplayDetected:      true,
	CodeDuplicateIdentity:   true,
	CodeNoMatch:             true,
	CodeLowConfidence:       true,
	CodeIdentityMismatch:    true,
}

// Error is a coded domain error. It wraps an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. A nil err returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsBusinessRejection reports whether err is an expected pipeline rejection
// as opposed to an infrastructure fault.
func IsBusinessRejection(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return businessCodes[de.Code]
	}
	return false
}
