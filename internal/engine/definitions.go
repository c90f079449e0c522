// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package engine compiles query definitions and executes them. A
// definitions document maps query names to SQL annotated with typed
// placeholders plus an argument schema; compilation extracts the
// placeholders, reconciles them with the schema and resolves the
// declared output fields. Execution validates runtime arguments,
// renders backend-specific statements through a Dialect and maps rows
// back to JSON-shaped values.
package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/canonical/sqlhub/internal/params"
	"github.com/canonical/sqlhub/internal/qerr"
)

// ParseDefinitions parses a JSON definitions document and compiles every
// query in it. Entries compile in name order, so the reported error for
// a bad document is deterministic.
func ParseDefinitions(data []byte) (map[string]*QueryDef, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, qerr.JSON(err)
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		return nil, qerr.JSON(fmt.Errorf("unexpected data after definitions document"))
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, qerr.TypeMismatch("object", params.Repr(doc))
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make(map[string]*QueryDef, len(obj))
	for _, name := range names {
		entry, ok := obj[name].(map[string]any)
		if !ok {
			return nil, qerr.TypeMismatch("object", fmt.Sprintf("%s: %s", name, params.Repr(obj[name])))
		}
		sql, ok := entry["query"].(string)
		if !ok {
			return nil, qerr.TypeMismatch(
				"required 'query' field with string value",
				fmt.Sprintf("%s: missing 'query' field", name))
		}
		def, err := Compile(name, sql, entry)
		if err != nil {
			return nil, err
		}
		defs[name] = def
	}
	return defs, nil
}
