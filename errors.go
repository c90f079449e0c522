// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlhub

import (
	"github.com/canonical/sqlhub/internal/qerr"
)

// Error is the error type returned by every operation in this package.
// Inspect it with errors.As to reach the code and the structured context,
// or match a kind with errors.Is against the sentinel values below.
type Error = qerr.Error

// Code identifies an error kind. Codes are stable across releases.
type Code = qerr.Code

// The error codes.
const (
	CodeIO                    = qerr.CodeIO
	CodeJSON                  = qerr.CodeJSON
	CodeDriver                = qerr.CodeDriver
	CodeRegex                 = qerr.CodeRegex
	CodeQueryNotFound         = qerr.CodeQueryNotFound
	CodeParameterNotProvided  = qerr.CodeParameterNotProvided
	CodeParameterTypeMismatch = qerr.CodeParameterTypeMismatch
	CodeParameterNameConflict = qerr.CodeParameterNameConflict
)

// Sentinel values for errors.Is checks. Matching is by code, so any
// parameter type mismatch matches ErrParameterTypeMismatch.
var (
	ErrIO                    = qerr.ErrIO
	ErrJSON                  = qerr.ErrJSON
	ErrDriver                = qerr.ErrDriver
	ErrRegex                 = qerr.ErrRegex
	ErrQueryNotFound         = qerr.ErrQueryNotFound
	ErrParameterNotProvided  = qerr.ErrParameterNotProvided
	ErrParameterTypeMismatch = qerr.ErrParameterTypeMismatch
	ErrParameterNameConflict = qerr.ErrParameterNameConflict
)

// ErrorInfo describes one error code: its stable name and the category it
// belongs to.
type ErrorInfo = qerr.Info

// ErrorInfos returns the metadata of every error code, in ascending code
// order.
func ErrorInfos() []ErrorInfo {
	return qerr.Infos()
}

// ErrorInfoFor returns the metadata of one error code.
func ErrorInfoFor(code Code) (ErrorInfo, bool) {
	return qerr.Lookup(code)
}
