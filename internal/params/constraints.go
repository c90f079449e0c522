// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package params

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/canonical/sqlhub/internal/qerr"
)

// Rule is a single validation rule attached to a parameter. Rules check a
// value that has already passed its basic kind check; args carries the
// full runtime argument object for conditional rules.
type Rule interface {
	check(value any, kind Kind, paramName string, args map[string]any) error

	// constraintRule is a marker method.
	constraintRule()
}

// Constraints holds the rules of one parameter in evaluation order, plus
// the declared element kind for list parameters.
type Constraints struct {
	Rules    []Rule
	ItemKind *Kind
}

// Range restricts a numeric value to [Min, Max], or a blob's byte length
// to that interval.
type Range struct {
	Min, Max float64
}

func (*Range) constraintRule() {}

func (r *Range) check(value any, kind Kind, _ string, _ map[string]any) error {
	switch kind {
	case Integer, Float:
		n := value.(json.Number)
		f, err := n.Float64()
		if err != nil {
			return qerr.TypeMismatch(fmt.Sprintf("value between %s and %s", floatRepr(r.Min), floatRepr(r.Max)), n.String())
		}
		if f < r.Min || f > r.Max {
			return qerr.TypeMismatch(
				fmt.Sprintf("value between %s and %s", floatRepr(r.Min), floatRepr(r.Max)),
				floatRepr(f))
		}
	case Blob:
		size := float64(len(value.([]any)))
		if size < r.Min || size > r.Max {
			return qerr.TypeMismatch(
				fmt.Sprintf("blob size between %s and %s bytes", floatRepr(r.Min), floatRepr(r.Max)),
				fmt.Sprintf("%s bytes", floatRepr(size)))
		}
	}
	return nil
}

// Pattern requires a string value to match a regular expression. The
// expression compiles on first use, see compilePattern.
type Pattern struct {
	Source string
}

func (*Pattern) constraintRule() {}

func (p *Pattern) check(value any, _ Kind, _ string, _ map[string]any) error {
	s, ok := value.(string)
	if !ok {
		return qerr.TypeMismatch(String.String(), Repr(value))
	}
	re, err := compilePattern(p.Source)
	if err != nil {
		return err
	}
	if !re.MatchString(s) {
		return qerr.TypeMismatch(fmt.Sprintf("string matching pattern '%s'", p.Source), s)
	}
	return nil
}

// Enum requires the value to equal one of a fixed set of JSON values.
type Enum struct {
	Allowed []any
}

func (*Enum) constraintRule() {}

func (e *Enum) check(value any, _ Kind, _ string, _ map[string]any) error {
	for _, allowed := range e.Allowed {
		if Equal(value, allowed) {
			return nil
		}
	}
	return qerr.TypeMismatch(fmt.Sprintf("one of [%s]", joinReprs(e.Allowed)), Repr(value))
}

// EnumIf requires the value to be admitted by the condition selected from
// the runtime value of other parameters. Conditions maps a conditional
// parameter name to condition keys, each key an exact value or a fuzzy
// start:/end:/contain: form, each carrying its allowed values.
type EnumIf struct {
	Conditions map[string]map[string][]any
}

func (*EnumIf) constraintRule() {}

func (e *EnumIf) check(value any, _ Kind, paramName string, args map[string]any) error {
	var allowed []any
	var found bool
	// Conditional parameters and their condition keys both evaluate in
	// alphabetical order; the first matching key overall supplies the
	// allowed values. Scanning continues so that a non-primitive
	// conditional value still errors.
	for _, condParam := range sortedKeys(e.Conditions) {
		condVal, ok := args[condParam]
		if !ok {
			continue
		}
		key, err := conditionKey(condVal, condParam)
		if err != nil {
			return err
		}
		conditions := e.Conditions[condParam]
		for _, ck := range sortedKeys(conditions) {
			if conditionMatches(ck, key) {
				if !found {
					found = true
					allowed = conditions[ck]
				}
				break
			}
		}
	}
	if !found {
		return qerr.TypeMismatch(
			"conditional parameter value that matches a defined condition",
			fmt.Sprintf("value not covered by any enumif condition for parameter %s", paramName))
	}
	for _, a := range allowed {
		if Equal(value, a) {
			return nil
		}
	}
	return qerr.TypeMismatch(
		fmt.Sprintf("one of [%s] based on conditional parameters", joinReprs(allowed)),
		Repr(value))
}

// conditionMatches tests one condition key against the stringified
// conditional value. Keys without a colon match exactly.
func conditionMatches(key, value string) bool {
	i := strings.Index(key, ":")
	if i < 0 {
		return key == value
	}
	suffix := key[i+1:]
	switch key[:i] {
	case "start":
		return strings.HasPrefix(value, suffix)
	case "end":
		return strings.HasSuffix(value, suffix)
	case "contain":
		return strings.Contains(value, suffix)
	}
	return false
}

// checkConditionKey validates a condition key's shape at definition time.
func checkConditionKey(key string) error {
	i := strings.Index(key, ":")
	if i < 0 {
		return nil
	}
	switch key[:i] {
	case "start", "end", "contain":
	default:
		return qerr.TypeMismatch("match type to be 'start', 'end', or 'contain'", key)
	}
	if !IsIdentifier(key[i+1:]) {
		return qerr.TypeMismatch("fuzzy pattern to be alphanumeric with underscores", key)
	}
	return nil
}

// ParseConstraints builds the constraints of a parameter of the given
// kind from its schema entry. Shape errors and kind incompatibilities are
// reported here, at definition time; only pattern compilation is deferred
// to first validation.
func ParseConstraints(entry map[string]any, kind Kind) (Constraints, error) {
	var c Constraints

	if rv, ok := entry["range"]; ok {
		rule, err := parseRange(rv)
		if err != nil {
			return c, err
		}
		c.Rules = append(c.Rules, rule)
	}

	if pv, ok := entry["pattern"]; ok {
		if s, ok := pv.(string); ok {
			c.Rules = append(c.Rules, &Pattern{Source: s})
		}
	}

	var hasEnum, hasEnumIf bool
	if ev, ok := entry["enum"]; ok {
		if arr, ok := ev.([]any); ok {
			hasEnum = true
			c.Rules = append(c.Rules, &Enum{Allowed: arr})
		}
	}

	if eiv, ok := entry["enumif"]; ok {
		rule, err := parseEnumIf(eiv)
		if err != nil {
			return c, err
		}
		hasEnumIf = true
		c.Rules = append(c.Rules, rule)
	}

	if hasEnum && hasEnumIf {
		return c, qerr.TypeMismatch("either 'enum' or 'enumif', not both", "'enum' and 'enumif' both specified")
	}

	if itv, ok := entry["itemtype"]; ok {
		if s, ok := itv.(string); ok {
			k, err := ParseKind(s)
			if err != nil {
				return c, err
			}
			if k == TableName || k == List {
				return c, qerr.TypeMismatch("item_type for list items cannot be TableName or List", k.String())
			}
			c.ItemKind = &k
		}
	}

	if err := c.checkRangeKind(kind); err != nil {
		return c, err
	}
	return c, nil
}

// checkRangeKind rejects a range constraint on kinds it cannot apply to.
// For lists the declared item kind decides.
func (c *Constraints) checkRangeKind(kind Kind) error {
	var hasRange bool
	for _, r := range c.Rules {
		if _, ok := r.(*Range); ok {
			hasRange = true
		}
	}
	if !hasRange {
		return nil
	}
	effective := kind
	if kind == List {
		if c.ItemKind == nil {
			return qerr.TypeMismatch("numeric type or blob", kind.String())
		}
		effective = *c.ItemKind
	}
	switch effective {
	case Integer, Float, Blob:
		return nil
	}
	return qerr.TypeMismatch("numeric type or blob", effective.String())
}

func parseRange(rv any) (*Range, error) {
	const expected = "array with exactly 2 numbers for range constraint"
	arr, ok := rv.([]any)
	if !ok {
		return nil, qerr.TypeMismatch(expected, fmt.Sprintf("%s (not an array)", Repr(rv)))
	}
	if len(arr) != 2 {
		return nil, qerr.TypeMismatch(expected, fmt.Sprintf("array with %d elements", len(arr)))
	}
	var bounds [2]float64
	for i, v := range arr {
		n, ok := v.(json.Number)
		if !ok {
			return nil, qerr.TypeMismatch("number", fmt.Sprintf("%s at index %d", Repr(v), i))
		}
		f, err := n.Float64()
		if err != nil {
			return nil, qerr.TypeMismatch("number", fmt.Sprintf("%s at index %d", Repr(v), i))
		}
		bounds[i] = f
	}
	return &Range{Min: bounds[0], Max: bounds[1]}, nil
}

func parseEnumIf(eiv any) (*EnumIf, error) {
	obj, ok := eiv.(map[string]any)
	if !ok {
		return nil, qerr.TypeMismatch("object mapping conditional parameters to conditions", Repr(eiv))
	}
	conditions := make(map[string]map[string][]any, len(obj))
	for _, condParam := range sortedKeys(obj) {
		condsObj, ok := obj[condParam].(map[string]any)
		if !ok {
			return nil, qerr.TypeMismatch(
				"object mapping condition values to allowed arrays",
				fmt.Sprintf("%s for parameter %s", Repr(obj[condParam]), condParam))
		}
		keyMap := make(map[string][]any, len(condsObj))
		for _, key := range sortedKeys(condsObj) {
			if err := checkConditionKey(key); err != nil {
				return nil, err
			}
			arr, ok := condsObj[key].([]any)
			if !ok {
				return nil, qerr.TypeMismatch(
					"array of allowed values",
					fmt.Sprintf("%s for condition %s", Repr(condsObj[key]), key))
			}
			for i, el := range arr {
				switch el.(type) {
				case string, json.Number, bool:
				default:
					r := Repr(el)
					return nil, qerr.TypeMismatch(
						"enumif allowed values to be primitives (string, number, or boolean)",
						fmt.Sprintf("%s (type %s) at index %d for condition %s", r, r, i, key))
				}
			}
			keyMap[key] = arr
		}
		conditions[condParam] = keyMap
	}
	return &EnumIf{Conditions: conditions}, nil
}
