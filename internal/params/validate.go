// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/canonical/sqlhub/internal/qerr"
)

// Validate checks a runtime value against the parameter's kind and
// constraints. args is the full runtime argument object, needed by
// conditional rules. The first failure is returned.
func (p *Parameter) Validate(value any, args map[string]any) error {
	c := &p.Constraints
	switch p.Kind {
	case List:
		arr, ok := value.([]any)
		if !ok {
			return mismatch(p.Kind, value)
		}
		if len(arr) == 0 {
			return qerr.TypeMismatch("non-empty list", "empty array")
		}
		if c.ItemKind == nil {
			return nil
		}
		for i, item := range arr {
			if err := checkBasic(item, *c.ItemKind); err != nil {
				return qerr.TypeMismatch(fmt.Sprintf("%s at index %d", *c.ItemKind, i), Repr(item))
			}
			for _, rule := range c.Rules {
				if err := rule.check(item, *c.ItemKind, p.Name, args); err != nil {
					return err
				}
			}
		}
		return nil
	case CommaList:
		arr, ok := value.([]any)
		if !ok {
			return mismatch(p.Kind, value)
		}
		if len(arr) == 0 {
			return qerr.TypeMismatch("non-empty comma_list", "empty array")
		}
		for i, item := range arr {
			s, ok := item.(string)
			if !ok {
				return qerr.TypeMismatch(fmt.Sprintf("string at index %d", i), Repr(item))
			}
			if !IsIdentifier(s) {
				return qerr.TypeMismatch(
					fmt.Sprintf("valid identifier (alphanumeric and underscores only) at index %d", i), s)
			}
			for _, rule := range c.Rules {
				if err := rule.check(item, String, p.Name, args); err != nil {
					return indexedError(err, i)
				}
			}
		}
		return nil
	}

	if err := checkBasic(value, p.Kind); err != nil {
		return err
	}
	for _, rule := range c.Rules {
		if err := rule.check(value, p.Kind, p.Name, args); err != nil {
			return err
		}
	}
	if p.Kind == TableName {
		if s := value.(string); !IsIdentifier(s) {
			return qerr.TypeMismatch("valid table name (alphanumeric and underscores only)", s)
		}
	}
	return nil
}

// checkBasic verifies that a value matches a kind, without constraints.
func checkBasic(value any, kind Kind) error {
	switch kind {
	case String, TableName:
		if _, ok := value.(string); !ok {
			return mismatch(kind, value)
		}
	case Integer:
		n, ok := value.(json.Number)
		if !ok {
			return mismatch(kind, value)
		}
		if _, err := n.Int64(); err != nil {
			return mismatch(kind, value)
		}
	case Float:
		n, ok := value.(json.Number)
		if !ok {
			return mismatch(kind, value)
		}
		if _, err := n.Float64(); err != nil {
			return mismatch(kind, value)
		}
	case Boolean:
		if _, ok := value.(bool); !ok {
			return mismatch(kind, value)
		}
	case Blob:
		arr, ok := value.([]any)
		if !ok {
			return mismatch(kind, value)
		}
		for i, item := range arr {
			n, ok := item.(json.Number)
			if !ok {
				return byteMismatch(i, Repr(item))
			}
			u, err := strconv.ParseUint(n.String(), 10, 64)
			if err != nil {
				return byteMismatch(i, Repr(item))
			}
			if u > 255 {
				return byteMismatch(i, strconv.FormatUint(u, 10))
			}
		}
	}
	return nil
}

func mismatch(kind Kind, value any) error {
	return qerr.TypeMismatch(kind.String(), Repr(value))
}

// indexedError tags a comma-list element rule failure with the element's
// position.
func indexedError(err error, index int) error {
	var qe *qerr.Error
	if errors.As(err, &qe) && qe.Code == qerr.CodeParameterTypeMismatch {
		return qerr.TypeMismatch(fmt.Sprintf("%s at index %d", qe.Expected, index), qe.Got)
	}
	return err
}

func byteMismatch(index int, got string) error {
	return qerr.TypeMismatch(fmt.Sprintf("byte values (0-255) at index %d", index), got)
}
