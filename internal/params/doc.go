// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package params implements the parameter model of sqlhub: the declared
// kind of each placeholder, the constraint rules that can be attached to
// it in a definitions document, and the validation of runtime JSON
// arguments against both.
//
// Values handled by this package live in the JSON domain as produced by
// an encoding/json decoder with UseNumber: string, bool, json.Number,
// nil, []any and map[string]any. Error messages render values in their
// compact JSON form so a failing string reads "five" and a failing
// number reads 5.
package params
