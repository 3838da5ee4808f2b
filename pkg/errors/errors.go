// Package errors provides the sentinel errors shared by karfab packages,
// and an error wrapper which remembers where it is wrapped.
//
// When you read a message of wrapped error, replace
//
//	s/<-/\n/
//
// and it gives you "stacks" of where you marks.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrNotFound is returned when a looked-up object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownType is returned when a declared entry type is not a legacy type name
	// nor a type registered in the type hierarchy.
	ErrUnknownType = errors.New("unknown type")

	// ErrNoHandler is returned when no handler is responsible for an entry type.
	ErrNoHandler = errors.New("no handler for the type")

	// ErrAmbiguousHandler is returned when two or more handlers claim an entry type.
	ErrAmbiguousHandler = errors.New("ambiguous handler for the type")

	// ErrCorruptEntry is returned when an archive or its entry is malformed.
	ErrCorruptEntry = errors.New("corrupt entry")

	// ErrUnsupportedVersion is returned when an archive has KAR-Version not supported.
	ErrUnsupportedVersion = errors.New("unsupported archive version")

	// ErrMissingDependency is returned when a module required by an archive is not installed.
	ErrMissingDependency = errors.New("missing module dependency")

	// ErrUnauthorized is returned when credentials or tokens are rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrExpired is returned when a token or a key has been expired.
	ErrExpired = errors.New("expired")
)

type ErrWithCaller struct {
	file     string
	line     int
	funcname string
	note     string
	err      error
}

func (e *ErrWithCaller) File() string {
	return e.file
}

func (e *ErrWithCaller) Line() int {
	return e.line
}

func (e *ErrWithCaller) Error() string {
	if e.note == "" {
		return fmt.Sprintf(`@ %s "%s" l%d <- %s`, e.funcname, e.file, e.line, e.err.Error())
	}
	return fmt.Sprintf(`@ %s "%s" l%d (%s) <- %s`, e.funcname, e.file, e.line, e.note, e.err.Error())
}

func (e *ErrWithCaller) Unwrap() error {
	return e.err
}

// New creates a new error which knows where it is created.
func New(text string) error {
	return wrap("", errors.New(text), 1)
}

// Wrap marks err with the location where Wrap is called.
//
// Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return wrap("", err, 1)
}

// WrapWithNote is Wrap with a short human-readable note.
func WrapWithNote(note string, err error) error {
	if err == nil {
		return nil
	}
	return wrap(note, err, 1)
}

// Is is errors.Is, re-exported to save an import of the standard errors.
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As, re-exported to save an import of the standard errors.
func As(err error, target any) bool {
	return errors.As(err, target)
}

func wrap(note string, err error, depth int) error {
	pc, file, line, ok := runtime.Caller(depth + 1)
	funcname := "(unknown func)"
	if !ok {
		file = "?"
		line = -1
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcname = fn.Name()
	}

	return &ErrWithCaller{
		funcname: funcname,
		file:     file,
		line:     line,
		note:     note,
		err:      err,
	}
}
