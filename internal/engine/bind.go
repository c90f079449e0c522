// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/canonical/sqlhub/internal/params"
	"github.com/canonical/sqlhub/internal/parse"
	"github.com/canonical/sqlhub/internal/qerr"
)

// Statement is one rendered statement ready for the driver: final SQL
// text plus the arguments it binds.
type Statement struct {
	SQL  string
	Args []any
}

// CheckArgs validates the runtime arguments against every declared
// parameter, in declared order. The first failure is returned.
func (q *QueryDef) CheckArgs(args map[string]any) error {
	for _, p := range q.params {
		v, ok := args[p.Name]
		if !ok {
			return qerr.NotProvided(p.Name)
		}
		if err := p.Validate(v, args); err != nil {
			return err
		}
	}
	return nil
}

// BuildStatements validates args and renders the query's statements for
// the dialect. A read renders its SQL as a single statement; a mutation
// renders each split statement with only the parameters it references.
func (q *QueryDef) BuildStatements(d Dialect, args map[string]any) ([]Statement, error) {
	if err := q.CheckArgs(args); err != nil {
		return nil, err
	}
	stmts := make([]Statement, 0, len(q.statements))
	for _, text := range q.statements {
		stmts = append(stmts, q.render(d, text, args))
	}
	return stmts, nil
}

// placeholder forms, in group order.
const (
	formScalar = iota
	formTable
	formList
	formCommaList
)

// span is one placeholder occurrence in a statement.
type span struct {
	parse.Match
	form int
}

func collectSpans(text string) []span {
	var spans []span
	add := func(ms []parse.Match, form int) {
		for _, m := range ms {
			spans = append(spans, span{Match: m, form: form})
		}
	}
	add(parse.ScalarMatches(text), formScalar)
	add(parse.TableMatches(text), formTable)
	add(parse.ListMatches(text), formList)
	add(parse.CommaListMatches(text), formCommaList)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// render substitutes every placeholder occurrence in one statement.
// Table names and comma-lists splice in as quoted identifiers, scalars
// and list elements become driver placeholders with bind arguments.
// Substitution is offset-based, so @x never corrupts @xy and quoted
// text is left alone.
func (q *QueryDef) render(d Dialect, text string, args map[string]any) Statement {
	spans := collectSpans(text)

	var binds []any
	numbers := map[string]int{}
	next := 0
	if d.style() == bindNumbered {
		// Distinct scalar names take $1..$k in sorted order and their
		// values bind first, ahead of any list elements.
		var names []string
		for _, sp := range spans {
			if sp.form == formScalar && numbers[sp.Name] == 0 {
				numbers[sp.Name] = -1
				names = append(names, sp.Name)
			}
		}
		sort.Strings(names)
		for i, n := range names {
			numbers[n] = i + 1
			binds = append(binds, scalarBind(d, q.byName[n], args[n]))
		}
		next = len(names)
	}

	var sb strings.Builder
	seenNamed := map[string]bool{}
	pos := 0
	for _, sp := range spans {
		sb.WriteString(text[pos:sp.Start])
		switch sp.form {
		case formScalar:
			v := scalarBind(d, q.byName[sp.Name], args[sp.Name])
			switch d.style() {
			case bindNamed:
				sb.WriteString(d.Placeholder(0, sp.Name))
				if !seenNamed[sp.Name] {
					seenNamed[sp.Name] = true
					binds = append(binds, sql.Named(sp.Name, v))
				}
			case bindNumbered:
				sb.WriteString(d.Placeholder(numbers[sp.Name], sp.Name))
			case bindOrdered:
				sb.WriteString(d.Placeholder(0, sp.Name))
				binds = append(binds, v)
			}
		case formTable:
			name, _ := args[sp.Name].(string)
			sb.WriteString(d.QuoteIdentifier(name))
		case formList:
			arr, _ := args[sp.Name].([]any)
			sb.WriteByte('(')
			for i, el := range arr {
				if i > 0 {
					sb.WriteString(", ")
				}
				v := listBind(d, el)
				switch d.style() {
				case bindNamed:
					elName := fmt.Sprintf("%s_%d", sp.Name, i)
					sb.WriteString(d.Placeholder(0, elName))
					if !seenNamed[elName] {
						seenNamed[elName] = true
						binds = append(binds, sql.Named(elName, v))
					}
				case bindNumbered:
					next++
					sb.WriteString(d.Placeholder(next, sp.Name))
					binds = append(binds, v)
				case bindOrdered:
					sb.WriteString(d.Placeholder(0, sp.Name))
					binds = append(binds, v)
				}
			}
			sb.WriteByte(')')
		case formCommaList:
			arr, _ := args[sp.Name].([]any)
			for i, el := range arr {
				if i > 0 {
					sb.WriteString(", ")
				}
				name, _ := el.(string)
				sb.WriteString(d.QuoteIdentifier(name))
			}
		}
		pos = sp.End
	}
	sb.WriteString(text[pos:])

	return Statement{SQL: sb.String(), Args: binds}
}

// scalarBind converts a validated scalar argument to the value the
// driver binds for it.
func scalarBind(d Dialect, p *params.Parameter, v any) any {
	if v == nil {
		return nil
	}
	switch p.Kind {
	case params.Integer:
		n, _ := v.(json.Number).Int64()
		return n
	case params.Float:
		f, _ := v.(json.Number).Float64()
		return f
	case params.Boolean:
		return d.BoolValue(v.(bool))
	case params.Blob:
		arr := v.([]any)
		b := make([]byte, len(arr))
		for i, el := range arr {
			u, _ := strconv.ParseUint(el.(json.Number).String(), 10, 64)
			b[i] = byte(u)
		}
		return b
	case params.List:
		return params.Repr(v)
	}
	return v.(string)
}

// listBind converts one list element. Elements are not kind-checked
// unless the list declares an item type, so conversion follows the
// value's own JSON shape; nested arrays and objects bind as their
// compact JSON text.
func listBind(d Dialect, v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return val
	case bool:
		return d.BoolValue(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	}
	return params.Repr(v)
}
