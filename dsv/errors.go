package dsv

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of value access so callers can map them to a
// response status without parsing messages.
type ErrorKind uint8

const (
	StorageFault ErrorKind = iota
	InvalidTypeDescriptor
	InvalidSelection
	ShapeMismatch
	TypeMismatch
	ValueOutOfRange
	StringTooLong
	UnsupportedEncoding
	NotImplemented
	NotFound
)

var kindNames = map[ErrorKind]string{
	StorageFault:          "storage fault",
	InvalidTypeDescriptor: "invalid type descriptor",
	InvalidSelection:      "invalid selection",
	ShapeMismatch:         "shape mismatch",
	TypeMismatch:          "type mismatch",
	ValueOutOfRange:       "value out of range",
	StringTooLong:         "string too long",
	UnsupportedEncoding:   "unsupported encoding",
	NotImplemented:        "not implemented",
	NotFound:              "not found",
}

func (k ErrorKind) String() string {
	if s, found := kindNames[k]; found {
		return s
	}
	return fmt.Sprintf("error kind %d", uint8(k))
}

// IsClientFault returns true if the error was caused by the request rather than the server.
func (k ErrorKind) IsClientFault() bool {
	switch k {
	case InvalidTypeDescriptor, InvalidSelection, ShapeMismatch, TypeMismatch,
		ValueOutOfRange, StringTooLong:
		return true
	}
	return false
}

// Error is a structured error carrying a kind and a human-readable detail.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

// Sentinels usable with errors.Is; matching is by kind only.
var (
	ErrInvalidTypeDescriptor = &Error{Kind: InvalidTypeDescriptor}
	ErrInvalidSelection      = &Error{Kind: InvalidSelection}
	ErrShapeMismatch         = &Error{Kind: ShapeMismatch}
	ErrTypeMismatch          = &Error{Kind: TypeMismatch}
	ErrValueOutOfRange       = &Error{Kind: ValueOutOfRange}
	ErrStringTooLong         = &Error{Kind: StringTooLong}
	ErrUnsupportedEncoding   = &Error{Kind: UnsupportedEncoding}
	ErrNotImplemented        = &Error{Kind: NotImplemented}
	ErrNotFound              = &Error{Kind: NotFound}
	ErrStorageFault          = &Error{Kind: StorageFault}
)

// NewError returns an error of the given kind with a formatted detail.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapError returns an error of the given kind that wraps err.
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Detail == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Detail == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or StorageFault if there
// is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return StorageFault
}
