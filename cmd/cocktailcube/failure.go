package main

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a device read or write did not happen.
type FailureKind int

const (
	// TransportFailure: network unreachable, timeout, connection reset.
	TransportFailure FailureKind = iota + 1
	// ProtocolFailure: the device answered with a non-success HTTP status.
	ProtocolFailure
	// MalformedPayload: the body is not the expected JSON document.
	MalformedPayload
	// ValidationFailure: a field is present but outside its accepted range.
	ValidationFailure
)

func (k FailureKind) String() string {
	switch k {
	case TransportFailure:
		return "transport"
	case ProtocolFailure:
		return "protocol"
	case MalformedPayload:
		return "malformed_payload"
	case ValidationFailure:
		return "validation"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// GatewayError is the single error type returned across the device gateway boundary.
type GatewayError struct {
	Kind FailureKind
	Op   string // "read values", "read settings", "write LIQUID_ANGLE_1", ...
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func failure(kind FailureKind, op string, err error) *GatewayError {
	return &GatewayError{Kind: kind, Op: op, Err: err}
}

// IsFailureKind reports whether err carries the given FailureKind.
func IsFailureKind(err error, kind FailureKind) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// FieldError describes one received field that was left unapplied.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Reason }
