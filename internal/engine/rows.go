// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"database/sql"

	"github.com/canonical/sqlhub/internal/qerr"
)

// MapRows reads every row and maps it to a JSON-shaped object keyed by
// the resolved field list. Mapping is by position: field i takes column
// i's value. A field beyond the row's columns maps to null, as does any
// column value the dialect cannot convert.
func MapRows(rows *sql.Rows, fields []string, d Dialect) ([]map[string]any, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, qerr.Driver(err)
	}
	dbTypes := make([]string, len(types))
	for i, t := range types {
		dbTypes[i] = t.DatabaseTypeName()
	}

	out := []map[string]any{}
	for rows.Next() {
		raw := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, qerr.Driver(err)
		}
		m := make(map[string]any, len(fields))
		for i, f := range fields {
			if i < len(raw) {
				m[f] = d.RowValue(raw[i], dbTypes[i])
			} else {
				m[f] = nil
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, qerr.Driver(err)
	}
	return out, nil
}
