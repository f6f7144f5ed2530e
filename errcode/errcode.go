package errcode

import "errors"

// Code is a stable, log-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Sensor reads
	Unavailable  Code = "unavailable"
	ParseFailure Code = "parse_failure"

	// GPIO line
	AlreadyClaimed   Code = "already_claimed"
	PermissionDenied Code = "permission_denied"
	IOFailure        Code = "io_failure"
	InvalidState     Code = "invalid_state"

	InvalidConfig Code = "invalid_config"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.X) match a wrapped E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap builds an *E. A nil cause is allowed.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error chain, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch x := e.(type) {
		case Code:
			return x
		case coder:
			return x.Code()
		}
	}
	return Error
}
