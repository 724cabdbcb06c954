package ble

import (
	"errors"
	"fmt"
)

var (
	// ErrRadioUnavailable means the adapter could not be powered on.
	// Scanning requests are deferred until it is.
	ErrRadioUnavailable = errors.New("ble: radio unavailable")
	// ErrLinkInvalidated is returned by Robot.Send after the link dropped.
	ErrLinkInvalidated = errors.New("ble: link invalidated")
	// ErrContractViolation marks caller misuse such as connecting twice to
	// the same peripheral or disconnecting an untracked robot.
	ErrContractViolation = errors.New("ble: contract violation")
	// ErrNotFound is returned by the selectors when no robot qualified.
	ErrNotFound = errors.New("ble: no robot found")
	// ErrClosed is returned after Manager.Close.
	ErrClosed = errors.New("ble: manager closed")
)

// NegotiationError reports a handshake that failed in State.
type NegotiationError struct {
	State NegotiationState
	Err   error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("ble: negotiation failed while %s: %v", e.State, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// contractViolation builds an ErrContractViolation with context.
func contractViolation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...))
}
