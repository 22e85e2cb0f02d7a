package agent

import (
	"errors"
	"fmt"

	"github.com/rahul/autopilot/internal/plan"
	"github.com/rahul/autopilot/internal/surface"
)

var (
	ErrSessionBusy     = errors.New("session is already running")
	ErrNotAwaitingUser = errors.New("session is not waiting for an answer")
	ErrUnknownSession  = errors.New("unknown session")
	ErrSessionClosed   = errors.New("session is closed")
)

// FailureReason says why a session ended in StatusFailed.
type FailureReason string

const (
	PlanningFailed       FailureReason = "planning_failed"
	StepUnrecoverable    FailureReason = "step_unrecoverable"
	InvalidVerification  FailureReason = "invalid_verification"
	IterationCapExceeded FailureReason = "iteration_cap_exceeded"
	Cancelled            FailureReason = "cancelled"
)

// FailureError ends a session.
type FailureError struct {
	Reason FailureReason
	Err    error
}

func (e *FailureError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

func fatal(reason FailureReason, err error) *FailureError {
	return &FailureError{Reason: reason, Err: err}
}

// SelectionError reports that every alternative of a step failed. It is the
// signal to ask for a replacement, not a session failure.
type SelectionError struct {
	Tried plan.AlternativeSet
	Page  surface.Snapshot
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("all %d alternatives failed", len(e.Tried))
}

// ReplacementReason classifies a rejected replacement request.
type ReplacementReason string

const (
	// Repeated means the reply reused a target that already failed.
	Repeated ReplacementReason = "repeated"
	// ServiceFailure means the generator errored, refused or timed out.
	ServiceFailure ReplacementReason = "service_failure"
	// Malformed means the reply held no usable alternatives.
	Malformed ReplacementReason = "malformed"
)

type ReplacementError struct {
	Reason ReplacementReason
	Err    error
}

func (e *ReplacementError) Error() string {
	return fmt.Sprintf("replacement %s: %v", e.Reason, e.Err)
}

func (e *ReplacementError) Unwrap() error { return e.Err }

// VerificationError is a goal check that can neither confirm the goal nor
// say what to do next.
type VerificationError struct {
	Msg string
	Err error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return "invalid verification: " + e.Msg
	}
	return fmt.Sprintf("invalid verification: %s: %v", e.Msg, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }
