// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/canonical/sqlhub/internal/params"
	"github.com/canonical/sqlhub/internal/parse"
	"github.com/canonical/sqlhub/internal/qerr"
)

// returnsPattern matches a whole-string dynamic returns reference.
var returnsPattern = sync.OnceValue(func() *regexp.Regexp { return regexp.MustCompile(`^~\[(\w+)\]$`) })

// QueryDef is one compiled query definition. It is immutable once
// compiled and safe for concurrent use.
type QueryDef struct {
	// Name is the key of the definition in its document.
	Name string
	// SQL is the definition's SQL exactly as written.
	SQL string

	// params holds the declared parameters in grouped first-appearance
	// order: scalars, then table names, lists and comma-lists.
	params []*params.Parameter
	byName map[string]*params.Parameter

	// returnFields is the static output field list; dynamicReturns names
	// the comma-list parameter the fields come from at execution time.
	// Both empty means the query is a mutation.
	returnFields   []string
	dynamicReturns string

	// statements is the precomputed execution plan: the SQL itself for a
	// read, the split statements for a mutation.
	statements []string
}

// IsRead reports whether the query returns rows.
func (q *QueryDef) IsRead() bool {
	return len(q.returnFields) > 0 || q.dynamicReturns != ""
}

// Fields resolves the output field list against the runtime arguments.
// Static lists are returned as compiled; a dynamic reference reads the
// comma-list argument's elements.
func (q *QueryDef) Fields(args map[string]any) []string {
	if q.dynamicReturns == "" {
		return q.returnFields
	}
	arr, _ := args[q.dynamicReturns].([]any)
	fields := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			fields = append(fields, s)
		}
	}
	return fields
}

// Compile builds a QueryDef from one definition entry. The entry carries
// the SQL under "query", the parameter schema under "args" and the
// output field declaration under "returns".
func Compile(name, sql string, entry map[string]any) (*QueryDef, error) {
	if parse.HasTransactionKeyword(sql) {
		return nil, qerr.TypeMismatch(
			"SQL without explicit transaction keywords",
			"Query contains BEGIN, COMMIT, ROLLBACK, START TRANSACTION, or END TRANSACTION")
	}

	ph, err := parse.ExtractPlaceholders(sql)
	if err != nil {
		return nil, err
	}

	schema, _ := entry["args"].(map[string]any)

	q := &QueryDef{Name: name, SQL: sql}
	q.byName = make(map[string]*params.Parameter)

	add := func(p *params.Parameter) {
		q.params = append(q.params, p)
		q.byName[p.Name] = p
	}

	// Scalars default to string; a schema entry may override the kind
	// and attach constraints.
	for _, pname := range ph.Scalars {
		kind := params.String
		def, _ := schema[pname].(map[string]any)
		if ts, ok := def["type"].(string); ok {
			kind, err = params.ParseKind(ts)
			if err != nil {
				return nil, err
			}
		}
		c, err := params.ParseConstraints(def, kind)
		if err != nil {
			return nil, err
		}
		add(&params.Parameter{Name: pname, Kind: kind, Constraints: c})
	}

	// Auto-detected parameters take their kind from the placeholder form;
	// a schema entry only contributes constraints.
	auto := []struct {
		names []string
		kind  params.Kind
	}{
		{ph.Tables, params.TableName},
		{ph.Lists, params.List},
		{ph.CommaLists, params.CommaList},
	}
	for _, group := range auto {
		for _, pname := range group.names {
			def, _ := schema[pname].(map[string]any)
			c, err := params.ParseConstraints(def, group.kind)
			if err != nil {
				return nil, err
			}
			add(&params.Parameter{Name: pname, Kind: group.kind, Constraints: c})
		}
	}

	if err := q.resolveReturns(entry); err != nil {
		return nil, err
	}

	if q.IsRead() {
		q.statements = []string{sql}
	} else {
		q.statements = parse.SplitStatements(sql)
	}
	return q, nil
}

func (q *QueryDef) resolveReturns(entry map[string]any) error {
	rv, ok := entry["returns"]
	if !ok {
		return nil
	}
	switch val := rv.(type) {
	case []any:
		seen := map[string]bool{}
		for _, el := range val {
			s, ok := el.(string)
			if !ok || seen[s] {
				continue
			}
			seen[s] = true
			q.returnFields = append(q.returnFields, s)
		}
	case string:
		m := returnsPattern().FindStringSubmatch(val)
		if m == nil {
			return qerr.TypeMismatch(
				"array of strings or ~[param_name] format",
				fmt.Sprintf("string not in ~[param_name] format: %s", val))
		}
		pname := m[1]
		p, ok := q.byName[pname]
		if !ok || p.Kind != params.CommaList {
			return qerr.TypeMismatch(
				fmt.Sprintf("returns reference ~[%s] to point to an existing comma_list parameter", pname),
				fmt.Sprintf("parameter '%s' not found or not a comma_list type", pname))
		}
		q.dynamicReturns = pname
	default:
		return qerr.TypeMismatch(
			"array of strings or ~[param_name] format", params.Repr(rv))
	}
	return nil
}
