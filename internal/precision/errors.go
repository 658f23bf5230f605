package precision

import (
	"errors"
	"fmt"
)

// ErrorKind classifies arithmetic failures.
type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota + 1
	KindDivisionByZero
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindDivisionByZero:
		return "DivisionByZero"
	default:
		return "Unknown"
	}
}

var (
	ErrInvalidInput   = errors.New("precision: invalid input")
	ErrDivisionByZero = errors.New("precision: division by zero")
)

// Error carries the failing operation and the offending value.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("precision %s: %s: %s", e.Op, e.Kind, e.Msg)
}

// Is lets errors.Is match the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrDivisionByZero:
		return e.Kind == KindDivisionByZero
	}
	return false
}

func invalid(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func divByZero(op, what string) error {
	return &Error{Kind: KindDivisionByZero, Op: op, Msg: what + " is zero"}
}
