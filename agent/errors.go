package agent

import "fmt"

// ErrTransient wraps a NACK or interest timeout from the messaging substrate.
// Callers retry these according to the policy of the calling component.
type ErrTransient struct {
	Op  string
	Err error
}

func (e *ErrTransient) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *ErrTransient) Unwrap() error { return e.Err }

// ErrStatus wraps a non-OK status code returned by the local forwarder's
// management protocol. Distinguished from ErrTransient so callers can choose
// a different retry policy for a forwarder-reported failure versus a NACK or
// timeout.
type ErrStatus struct {
	Op     string
	Code   uint64
	Reason string
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Reason)
}

// StatusOK and StatusFaceExists mirror the forwarder's control-response codes.
const (
	StatusOK         = 200
	StatusFaceExists = 409
)
