// Package vmerr is the engine's closed error type: every error that
// crosses the VM/user boundary is a vmerr.Error carrying one of a fixed
// set of Kinds, never a raw Go error string (spec.md §7's "Error taxonomy
// on the wire"). Grounded on tetratelabs-wazero's wasmruntime sentinel
// pattern (a small enumerable set of named failure conditions), adapted
// from one sentinel per trap to one Kind enum since the ES error
// taxonomy is closed and enumerable up front.
package vmerr

import "github.com/quillrt/quill/internal/value"

// Kind is KindThrow (a thrown script value) or one of the eight wire-level
// error categories (spec.md §7).
type Kind uint8

const (
	KindThrow Kind = iota
	KindTypeError
	KindRangeError
	KindSyntaxError
	KindReferenceError
	KindInternalError
	KindPermissionDenied
	KindInterrupted
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindThrow:
		return "Throw"
	case KindTypeError:
		return "TypeError"
	case KindRangeError:
		return "RangeError"
	case KindSyntaxError:
		return "SyntaxError"
	case KindReferenceError:
		return "ReferenceError"
	case KindInternalError:
		return "InternalError"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindInterrupted:
		return "Interrupted"
	case KindTimeout:
		return "Timeout"
	default:
		return "UnknownError"
	}
}

// Error is the one error type that crosses the VM/user boundary. Value
// holds the thrown value for KindThrow (an arbitrary script value);
// for every other Kind it's Undefined and Message carries the text.
type Error struct {
	Kind    Kind
	Message string
	Value   value.Value
}

func (e *Error) Error() string {
	if e.Kind == KindThrow {
		return "Uncaught: " + e.Message
	}
	return e.Kind.String() + ": " + e.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NewThrow(v value.Value, message string) *Error {
	return &Error{Kind: KindThrow, Message: message, Value: v}
}

func TypeError(message string) *Error { return New(KindTypeError, message) }
func RangeError(message string) *Error { return New(KindRangeError, message) }
func ReferenceError(message string) *Error { return New(KindReferenceError, message) }
