// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package params

import (
	"strings"

	"github.com/canonical/sqlhub/internal/qerr"
)

// Kind is the declared type of a query parameter.
type Kind int

const (
	Integer Kind = iota
	String
	Float
	Boolean
	TableName
	Blob
	List
	CommaList
)

// String returns the name used for the kind in definitions documents and
// error messages.
func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case String:
		return "string"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	case TableName:
		return "table_name"
	case Blob:
		return "blob"
	case List:
		return "list"
	case CommaList:
		return "comma_list"
	}
	return "unknown"
}

// ParseKind parses a declared type name, case-insensitively. CommaList is
// not declarable: a comma-list parameter only ever comes from the ~[name]
// placeholder form.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "integer":
		return Integer, nil
	case "string":
		return String, nil
	case "float":
		return Float, nil
	case "boolean":
		return Boolean, nil
	case "table_name":
		return TableName, nil
	case "list":
		return List, nil
	case "blob":
		return Blob, nil
	}
	return 0, qerr.TypeMismatch("integer, string, float, boolean, table_name, list or blob", s)
}

// Parameter is one declared placeholder of a query, created during
// compilation and immutable afterwards.
type Parameter struct {
	Name        string
	Kind        Kind
	Constraints Constraints
}
