package dispatch

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	NoMatch ErrorKind = iota + 1
	Ambiguous
	UnknownMethod
	ConstViolation
	TypeMismatch
	Destroyed
	UnknownKeyword
)

func (k ErrorKind) String() string {
	switch k {
	case NoMatch:
		return "no match"
	case Ambiguous:
		return "ambiguous"
	case UnknownMethod:
		return "unknown method"
	case ConstViolation:
		return "const violation"
	case TypeMismatch:
		return "type mismatch"
	case Destroyed:
		return "destroyed"
	case UnknownKeyword:
		return "unknown keyword"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels for errors.Is, one per kind.
var (
	ErrNoMatch        = &DispatchError{Kind: NoMatch}
	ErrAmbiguous      = &DispatchError{Kind: Ambiguous}
	ErrUnknownMethod  = &DispatchError{Kind: UnknownMethod}
	ErrConstViolation = &DispatchError{Kind: ConstViolation}
	ErrTypeMismatch   = &DispatchError{Kind: TypeMismatch}
	ErrDestroyed      = &DispatchError{Kind: Destroyed}
	ErrUnknownKeyword = &DispatchError{Kind: UnknownKeyword}
)

// DispatchError is returned for every failure that happens before the native
// function is entered. Message is shown to users of interactive consoles and
// must be deterministic for a given registry and call.
type DispatchError struct {
	Kind    ErrorKind
	Message string
}

func (e *DispatchError) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// Is matches any DispatchError of the same kind, so the sentinels above can
// be used with errors.Is.
func (e *DispatchError) Is(target error) bool {
	var other *DispatchError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

func newDispatchError(kind ErrorKind, format string, args ...any) *DispatchError {
	return &DispatchError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// NativeError wraps an error returned by, or a panic raised inside, a native
// thunk. It is never a DispatchError.
type NativeError struct {
	Method string
	Err    error
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("error while calling %s: %s", e.Method, e.Err)
}

func (e *NativeError) Unwrap() error {
	return e.Err
}
