package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies a failure reported by the device or the transport.
// The numeric value equals the punchboot result code (sent negated on the wire).
type Kind int8

// Error kinds, in result code order.
const (
	KindOK Kind = iota
	KindGeneric
	KindAuthentication
	KindNotAuthenticated
	KindNotSupported
	KindArgument
	KindCommand
	KindPartVerify
	KindPartNotBootable
	KindNoMemory
	KindTransfer
	KindNotFound
	KindStreamNotInitialized
	KindTimeout
	KindKeyRevoked
	KindSignature
	KindMem
	KindIO
)

// String returns the short description the device tools use for the kind.
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindGeneric:
		return "Error"
	case KindAuthentication:
		return "Authentication failed"
	case KindNotAuthenticated:
		return "Not authenticated"
	case KindNotSupported:
		return "Not supported"
	case KindArgument:
		return "Invalid argument"
	case KindCommand:
		return "Invalid command"
	case KindPartVerify:
		return "Partition verify failed"
	case KindPartNotBootable:
		return "Partition not bootable"
	case KindNoMemory:
		return "No memory"
	case KindTransfer:
		return "Transfer error"
	case KindNotFound:
		return "Not found"
	case KindStreamNotInitialized:
		return "Stream not initialized"
	case KindTimeout:
		return "Timeout error"
	case KindKeyRevoked:
		return "Invalid key, key is revoked"
	case KindSignature:
		return "Signature error"
	case KindMem:
		return "Memory error"
	case KindIO:
		return "I/O error"
	default:
		return fmt.Sprintf("unknown result code %d", int8(k))
	}
}

// Error represents a failed punchboot operation.
// It is returned both for device result codes and for transport failures.
type Error struct {
	// Op is the operation that failed (optional)
	Op string

	// Kind is the failure category
	Kind Kind

	// Err is the underlying cause (optional)
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + " failed: " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind, so the sentinel values below
// can be used with errors.Is regardless of Op and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinel errors for use with errors.Is.
var (
	ErrGeneric              = &Error{Kind: KindGeneric}
	ErrAuthentication       = &Error{Kind: KindAuthentication}
	ErrNotAuthenticated     = &Error{Kind: KindNotAuthenticated}
	ErrNotSupported         = &Error{Kind: KindNotSupported}
	ErrArgument             = &Error{Kind: KindArgument}
	ErrCommand              = &Error{Kind: KindCommand}
	ErrPartVerify           = &Error{Kind: KindPartVerify}
	ErrPartNotBootable      = &Error{Kind: KindPartNotBootable}
	ErrNoMemory             = &Error{Kind: KindNoMemory}
	ErrTransfer             = &Error{Kind: KindTransfer}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrStreamNotInitialized = &Error{Kind: KindStreamNotInitialized}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrKeyRevoked           = &Error{Kind: KindKeyRevoked}
	ErrSignature            = &Error{Kind: KindSignature}
	ErrMem                  = &Error{Kind: KindMem}
	ErrIO                   = &Error{Kind: KindIO}
)

// ResultError converts a wire result code into an error.
// Returns nil for success. Result codes are sent negated; positive values are
// accepted as well.
func ResultError(op string, code int8) error {
	if code == 0 {
		return nil
	}
	k := code
	if k < 0 {
		k = -k
	}
	return &Error{Op: op, Kind: Kind(k)}
}

// KindOf returns the Kind carried by err, or KindGeneric if err is not a
// punchboot error. Returns KindOK for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindGeneric
}

// IsProtocolError returns true if the error is, or wraps, an *Error.
func IsProtocolError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}
