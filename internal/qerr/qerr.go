// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package qerr defines the error type shared by all sqlhub packages. Every
// failure surfaced by the library is a *Error carrying a stable numeric code
// and the metadata fields relevant to that code, so callers can branch on
// errors.Is against the exported sentinels or inspect the fields directly.
package qerr

import (
	"encoding/json"
	"fmt"
)

// Code identifies a class of sqlhub error. Codes below 2000 wrap failures
// from outside the library, codes from 2000 up are raised by sqlhub itself.
type Code uint16

const (
	CodeIO                    Code = 1000
	CodeJSON                  Code = 1010
	CodeDriver                Code = 1020
	CodeRegex                 Code = 1040
	CodeQueryNotFound         Code = 2000
	CodeParameterNotProvided  Code = 2010
	CodeParameterTypeMismatch Code = 2020
	CodeParameterNameConflict Code = 2030
)

// Error is the concrete error type returned by sqlhub operations. Only the
// fields relevant to the Code are set.
type Error struct {
	Code Code

	// Expected and Got describe a type mismatch or a pattern failure.
	Expected string
	Got      string

	// QueryName is the name looked up when the Code is CodeQueryNotFound.
	QueryName string

	// ParamName is the missing parameter when the Code is
	// CodeParameterNotProvided.
	ParamName string

	// ConflictName is the name declared under more than one placeholder
	// kind when the Code is CodeParameterNameConflict.
	ConflictName string

	// Offset is the byte offset of a JSON syntax error, when known.
	Offset int64

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case CodeIO:
		return fmt.Sprintf("io error: %s", e.cause)
	case CodeJSON:
		if e.Offset > 0 {
			return fmt.Sprintf("json error at offset %d: %s", e.Offset, e.cause)
		}
		return fmt.Sprintf("json error: %s", e.cause)
	case CodeDriver:
		return fmt.Sprintf("driver error: %s", e.cause)
	case CodeRegex:
		return fmt.Sprintf("invalid pattern %q: %s", e.Got, e.cause)
	case CodeQueryNotFound:
		return fmt.Sprintf("query %q not found", e.QueryName)
	case CodeParameterNotProvided:
		return fmt.Sprintf("parameter %q not provided", e.ParamName)
	case CodeParameterTypeMismatch:
		return fmt.Sprintf("parameter type mismatch: expected %s, got %s", e.Expected, e.Got)
	case CodeParameterNameConflict:
		return fmt.Sprintf("parameter name conflict: %q", e.ConflictName)
	}
	return fmt.Sprintf("sqlhub error %d", e.Code)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code, which makes
// errors.Is(err, ErrParameterTypeMismatch) and friends work across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel values for errors.Is. They carry no metadata themselves.
var (
	ErrIO                    = &Error{Code: CodeIO}
	ErrJSON                  = &Error{Code: CodeJSON}
	ErrDriver                = &Error{Code: CodeDriver}
	ErrRegex                 = &Error{Code: CodeRegex}
	ErrQueryNotFound         = &Error{Code: CodeQueryNotFound}
	ErrParameterNotProvided  = &Error{Code: CodeParameterNotProvided}
	ErrParameterTypeMismatch = &Error{Code: CodeParameterTypeMismatch}
	ErrParameterNameConflict = &Error{Code: CodeParameterNameConflict}
)

// IO wraps a filesystem or reader failure.
func IO(err error) *Error {
	return &Error{Code: CodeIO, cause: err}
}

// JSON wraps a decoding failure, recording the byte offset when the
// underlying error exposes one.
func JSON(err error) *Error {
	e := &Error{Code: CodeJSON, cause: err}
	switch jerr := err.(type) {
	case *json.SyntaxError:
		e.Offset = jerr.Offset
	case *json.UnmarshalTypeError:
		e.Offset = jerr.Offset
	}
	return e
}

// Driver wraps a failure reported by the database driver.
func Driver(err error) *Error {
	return &Error{Code: CodeDriver, cause: err}
}

// Regex wraps a pattern compilation failure for the given source.
func Regex(err error, pattern string) *Error {
	return &Error{Code: CodeRegex, Expected: "valid regex pattern", Got: pattern, cause: err}
}

// QueryNotFound reports a lookup of an undefined query name.
func QueryNotFound(name string) *Error {
	return &Error{Code: CodeQueryNotFound, QueryName: name}
}

// NotProvided reports a declared parameter missing from the arguments.
func NotProvided(param string) *Error {
	return &Error{Code: CodeParameterNotProvided, ParamName: param}
}

// TypeMismatch reports a value that does not satisfy its parameter's kind
// or constraints.
func TypeMismatch(expected, got string) *Error {
	return &Error{Code: CodeParameterTypeMismatch, Expected: expected, Got: got}
}

// NameConflict reports a parameter name used under more than one
// placeholder kind.
func NameConflict(name string) *Error {
	return &Error{Code: CodeParameterNameConflict, ConflictName: name}
}

// Info describes an error code for documentation and tooling.
type Info struct {
	Code        Code
	Name        string
	Category    string
	Description string
}

var infos = []Info{
	{CodeIO, "IO_ERROR", "System", "Input/output operation failed"},
	{CodeJSON, "JSON_ERROR", "Serialization", "JSON parsing or serialization failed"},
	{CodeDriver, "DRIVER_ERROR", "System", "Database driver operation failed"},
	{CodeRegex, "REGEX_ERROR", "Pattern", "Regular expression compilation or matching failed"},
	{CodeQueryNotFound, "QUERY_NOT_FOUND", "Query", "Requested query definition was not found"},
	{CodeParameterNotProvided, "PARAMETER_NOT_PROVIDED", "Parameter", "Required parameter was not provided"},
	{CodeParameterTypeMismatch, "PARAMETER_TYPE_MISMATCH", "Parameter", "Parameter value does not match expected type"},
	{CodeParameterNameConflict, "PARAMETER_NAME_CONFLICT", "Parameter", "Parameter name conflicts with another placeholder kind"},
}

// Lookup returns the Info for a code.
func Lookup(code Code) (Info, bool) {
	for _, info := range infos {
		if info.Code == code {
			return info, true
		}
	}
	return Info{}, false
}

// Infos returns the full code table in ascending code order.
func Infos() []Info {
	out := make([]Info, len(infos))
	copy(out, infos)
	return out
}
