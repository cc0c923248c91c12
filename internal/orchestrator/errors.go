package orchestrator

import "errors"

// Error classes per §7. The orchestrator never lets a raw dependency
// error reach a caller uncategorized — every failure path wraps into
// one of these before it crosses the C8 boundary.
type ErrorClass string

const (
	ClassConfig     ErrorClass = "config"
	ClassTransport  ErrorClass = "transport"
	ClassProtocol   ErrorClass = "protocol"
	ClassValidation ErrorClass = "validation"
)

// ClassifiedError wraps an underlying error with its §7 class, so
// gateway handlers and logs can branch/tag without string matching.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string { return string(e.Class) + ": " + e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

func configErr(err error) error     { return &ClassifiedError{Class: ClassConfig, Err: err} }
func transportErr(err error) error  { return &ClassifiedError{Class: ClassTransport, Err: err} }
func protocolErr(err error) error   { return &ClassifiedError{Class: ClassProtocol, Err: err} }
func validationErr(err error) error { return &ClassifiedError{Class: ClassValidation, Err: err} }

// ErrMissingTenant is returned when an inbound message carries no
// tenant identifier (§4.8 step 1).
var ErrMissingTenant = errors.New("orchestrator: message is missing a tenant")
