package engine

import (
	"errors"
	"fmt"
)

// Error kinds. Every error raised while executing a command wraps one of
// these so callers can classify it with errors.Is.
var (
	ErrParse                = errors.New("parse error")
	ErrUnknownCommand       = errors.New("unknown command")
	ErrUnsupportedStatement = errors.New("unsupported statement")
	ErrCommandArgument      = errors.New("command argument error")
	ErrMissingPrimaryKey    = errors.New("missing primary key")
	ErrFilteringRequired    = errors.New("filtering required")
	ErrUnsupportedDelete    = errors.New("unsupported delete")
)

// Error is a user-facing command error. Its message is shown verbatim.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ParseError reports malformed syntax.
func ParseError(format string, args ...any) error {
	return Errorf(ErrParse, format, args...)
}

// ArgumentError reports wrong arity or types for a recognized command.
func ArgumentError(format string, args ...any) error {
	return Errorf(ErrCommandArgument, format, args...)
}
