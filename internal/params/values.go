// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package params

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/canonical/sqlhub/internal/qerr"
)

// Repr renders a decoded JSON value in its compact JSON form, so strings
// keep their quotes and numbers their literal text.
func Repr(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// floatRepr renders a float the way error messages expect: shortest
// decimal form, never exponent notation.
func floatRepr(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// intForm reports whether the number literal is in integer form, with no
// fraction or exponent.
func intForm(n json.Number) bool {
	return !strings.ContainsAny(n.String(), ".eE")
}

func numbersEqual(a, b json.Number) bool {
	if intForm(a) != intForm(b) {
		return false
	}
	if intForm(a) {
		x, errx := a.Int64()
		y, erry := b.Int64()
		if errx == nil && erry == nil {
			return x == y
		}
		return a.String() == b.String()
	}
	x, errx := a.Float64()
	y, erry := b.Float64()
	if errx == nil && erry == nil {
		return x == y
	}
	return a.String() == b.String()
}

// Equal compares two decoded JSON values. Numbers in integer form never
// equal numbers in float form, so an enum of [1, 2] does not admit 1.0.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case json.Number:
		bv, ok := b.(json.Number)
		return ok && numbersEqual(av, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return false
}

// IsIdentifier reports whether s is non-empty and contains only letters,
// digits and underscores.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// conditionKey stringifies a conditional parameter's value for matching
// against enumif condition keys. Only primitives can act as conditions.
func conditionKey(v any, paramName string) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	}
	r := Repr(v)
	return "", qerr.TypeMismatch(
		String.String(),
		fmt.Sprintf("%s (type %s) for parameter %s", r, r, paramName))
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinReprs(values []any) string {
	reprs := make([]string, len(values))
	for i, v := range values {
		reprs[i] = Repr(v)
	}
	return strings.Join(reprs, ", ")
}
