package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected during evaluation.
//
// Runtime errors include:
//   - Fuser failure: a rule's fuser returned an error
//   - Invalid output: a fuser returned an output with no inputs or repeated inputs
//   - No inputs: conflict resolution was asked to choose among nothing
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RuleID identifies the rule whose fuser failed, if any.
	RuleID string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeFuserFailed indicates a rule's fuser returned an error.
	ErrCodeFuserFailed RuntimeErrorCode = "FUSER_FAILED"

	// ErrCodeInvalidOutput indicates a fused output broke its structural invariants.
	ErrCodeInvalidOutput RuntimeErrorCode = "INVALID_OUTPUT"

	// ErrCodeNoInputs indicates an empty input set.
	ErrCodeNoInputs RuntimeErrorCode = "NO_INPUTS"
)

// ErrNoInputs is returned by ResolveConflict for an empty input slice.
var ErrNoInputs = &RuntimeError{
	Code:    ErrCodeNoInputs,
	Message: "no inputs to resolve",
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RuleID != "" {
		msg += fmt.Sprintf(" (rule=%s)", e.RuleID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsFuserError returns true if the error is a fuser failure.
// Uses errors.As to handle wrapped errors.
func IsFuserError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeFuserFailed
	}
	return false
}

// IsInvalidOutputError returns true if a fuser produced a malformed output.
func IsInvalidOutputError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidOutput
	}
	return false
}

// NewFuserError wraps a fuser's error with the rule that produced it.
func NewFuserError(ruleID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeFuserFailed,
		Message: "fuser returned an error",
		RuleID:  ruleID,
		Err:     err,
	}
}

// NewInvalidOutputError reports a fused output that failed validation.
func NewInvalidOutputError(ruleID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidOutput,
		Message: "fused output failed validation",
		RuleID:  ruleID,
		Err:     err,
	}
}
