// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// bindStyle selects how scalar and list placeholders turn into driver
// placeholders and bind arguments.
type bindStyle int

const (
	// bindNamed renders @name placeholders and binds values by name.
	bindNamed bindStyle = iota
	// bindNumbered renders $N placeholders. Distinct scalar names take
	// the numbers 1..k in sorted name order, every occurrence of a name
	// reuses its number, and list elements take the numbers after k in
	// order of appearance.
	bindNumbered
	// bindOrdered renders ? placeholders and binds values in order of
	// appearance, repeating the value of a name that occurs twice.
	bindOrdered
)

// Dialect adapts query building and row reading to one database backend.
// The three implementations below are the supported set; the unexported
// style method keeps it closed.
type Dialect interface {
	// Name returns the database/sql driver name the dialect targets.
	Name() string

	// Placeholder returns the placeholder text for one scalar or list
	// element occurrence. n is the 1-based placeholder number, used only
	// by numbered dialects; name is the parameter name, used only by
	// named dialects.
	Placeholder(n int, name string) string

	// QuoteIdentifier quotes an already validated identifier for
	// splicing into SQL text.
	QuoteIdentifier(name string) string

	// BoolValue converts a boolean argument to the value the driver
	// binds for it.
	BoolValue(b bool) any

	// RowValue converts one scanned column value to its JSON-shaped
	// form. dbType is the column's database type name as reported by
	// the driver, empty when unknown.
	RowValue(v any, dbType string) any

	style() bindStyle
}

// The supported dialects.
var (
	SQLite   Dialect = sqliteDialect{}
	Postgres Dialect = postgresDialect{}
	MySQL    Dialect = mysqlDialect{}
)

// byteNumbers renders a blob column as an array of byte values, which
// marshals to a JSON array of numbers.
func byteNumbers(b []byte) []any {
	vs := make([]any, len(b))
	for i, c := range b {
		vs[i] = int64(c)
	}
	return vs
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite3" }

func (sqliteDialect) Placeholder(_ int, name string) string { return "@" + name }

func (sqliteDialect) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (sqliteDialect) BoolValue(b bool) any {
	if b {
		return int64(1)
	}
	return int64(0)
}

func (sqliteDialect) RowValue(v any, _ string) any {
	switch val := v.(type) {
	case nil:
		return nil
	case int64, float64, string:
		return val
	case bool:
		return val
	case []byte:
		return byteNumbers(val)
	case time.Time:
		return val.Format(time.RFC3339)
	}
	return nil
}

func (sqliteDialect) style() bindStyle { return bindNamed }

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int, _ string) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (postgresDialect) BoolValue(b bool) any { return b }

func (postgresDialect) RowValue(v any, dbType string) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool, int64, float64, string:
		return val
	case []byte:
		if dbType == "JSON" || dbType == "JSONB" {
			dec := json.NewDecoder(bytes.NewReader(val))
			dec.UseNumber()
			var parsed any
			if err := dec.Decode(&parsed); err != nil {
				return nil
			}
			return parsed
		}
		return byteNumbers(val)
	case time.Time:
		return val.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func (postgresDialect) style() bindStyle { return bindNumbered }

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Placeholder(_ int, _ string) string { return "?" }

func (mysqlDialect) QuoteIdentifier(name string) string { return "`" + name + "`" }

func (mysqlDialect) BoolValue(b bool) any {
	if b {
		return int64(1)
	}
	return int64(0)
}

func (mysqlDialect) RowValue(v any, dbType string) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool, int64, float64, string:
		return val
	case []byte:
		if strings.Contains(dbType, "BLOB") || strings.Contains(dbType, "BINARY") {
			return byteNumbers(val)
		}
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func (mysqlDialect) style() bindStyle { return bindOrdered }
