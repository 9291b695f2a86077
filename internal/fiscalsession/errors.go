// Package fiscalsession implements the Datecs fiscal receipt state machine
// (spec.md §4.5): preflight, open/sell/pay/close, storno, report, cash, and
// the supplemented datetime/cancel-receipt operations. It is the layer
// that sequences pkg/datecs frames over an internal/transport.Transport.
package fiscalsession

import "fmt"

// Kind is the closed set of error kinds spec.md §7 names.
type Kind string

const (
	KindTransport         Kind = "transport-error"
	KindFraming           Kind = "framing-error"
	KindProtocolTimeout   Kind = "protocol-timeout"
	KindDeviceError       Kind = "device-error"
	KindPaymentIncomplete Kind = "payment-incomplete"
	KindValidation        Kind = "validation-error"
	KindDeviceNotReady    Kind = "device-not-ready"
)

// Error wraps a classified failure with its kind and, where relevant, the
// underlying cause (spec.md §7 "propagating with its structured context").
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}
