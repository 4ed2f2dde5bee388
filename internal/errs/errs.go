// Package errs classifies the failures the engine reports to callers of Run.
// Every error carries one of the class sentinels so callers can branch with
// errors.Is without caring which component produced it.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration       = errors.New("configuration error")
	ErrStreamConfiguration = errors.New("stream configuration error")
	ErrStorage             = errors.New("storage error")
	ErrUnsupportedKind     = errors.New("unsupported kind")
)

// Error wraps a cause with its class and the operation that failed.
type Error struct {
	Class error
	Op    string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Class, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Class, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Class)
	default:
		return e.Class.Error()
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Err}
}

func Configuration(op, format string, args ...any) error {
	return &Error{Class: ErrConfiguration, Op: op, Err: fmt.Errorf(format, args...)}
}

func StreamConfiguration(op, format string, args ...any) error {
	return &Error{Class: ErrStreamConfiguration, Op: op, Err: fmt.Errorf(format, args...)}
}

// Storage wraps err unless it is nil or already classified as a storage error.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return &Error{Class: ErrStorage, Op: op, Err: err}
}

func UnsupportedKind(op, format string, args ...any) error {
	return &Error{Class: ErrUnsupportedKind, Op: op, Err: fmt.Errorf(format, args...)}
}
