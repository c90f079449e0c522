// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"regexp"
	"sync"

	"github.com/canonical/sqlhub/internal/qerr"
)

// The placeholder patterns are package-scoped and compiled on first use.
var (
	scalarPattern    = sync.OnceValue(func() *regexp.Regexp { return regexp.MustCompile(`@(\w+)`) })
	tablePattern     = sync.OnceValue(func() *regexp.Regexp { return regexp.MustCompile(`#(?:\[(\w+)\]|(\w+))`) })
	listPattern      = sync.OnceValue(func() *regexp.Regexp { return regexp.MustCompile(`:\[(\w+)\]`) })
	commaListPattern = sync.OnceValue(func() *regexp.Regexp { return regexp.MustCompile(`~\[(\w+)\]`) })
)

// Match locates one placeholder occurrence in a query string. Start and
// End are byte offsets of the whole placeholder, including its sigil.
type Match struct {
	Name  string
	Start int
	End   int
}

// matchAll returns every occurrence of re in sql that is not inside a
// string literal, in order of appearance. Duplicate names are kept.
func matchAll(re *regexp.Regexp, sql string) []Match {
	var ms []Match
	for _, idx := range re.FindAllStringSubmatchIndex(sql, -1) {
		if InQuotes(sql, idx[0]) {
			continue
		}
		var name string
		for g := 1; 2*g < len(idx); g++ {
			if idx[2*g] >= 0 {
				name = sql[idx[2*g]:idx[2*g+1]]
				break
			}
		}
		ms = append(ms, Match{Name: name, Start: idx[0], End: idx[1]})
	}
	return ms
}

// ScalarMatches returns the @name occurrences in sql.
func ScalarMatches(sql string) []Match {
	return matchAll(scalarPattern(), sql)
}

// TableMatches returns the #name and #[name] occurrences in sql.
func TableMatches(sql string) []Match {
	return matchAll(tablePattern(), sql)
}

// ListMatches returns the :[name] occurrences in sql.
func ListMatches(sql string) []Match {
	return matchAll(listPattern(), sql)
}

// CommaListMatches returns the ~[name] occurrences in sql.
func CommaListMatches(sql string) []Match {
	return matchAll(commaListPattern(), sql)
}

// Placeholders holds the distinct placeholder names of a query grouped by
// placeholder form, each group in order of first appearance.
type Placeholders struct {
	Scalars    []string
	Tables     []string
	Lists      []string
	CommaLists []string
}

func distinct(ms []Match) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range ms {
		if !seen[m.Name] {
			seen[m.Name] = true
			names = append(names, m.Name)
		}
	}
	return names
}

// ExtractPlaceholders scans sql for all placeholder forms and returns the
// grouped distinct names. A name appearing under more than one form is a
// conflict: the same identifier cannot be both, say, a scalar and a table
// name.
func ExtractPlaceholders(sql string) (*Placeholders, error) {
	ph := &Placeholders{
		Scalars:    distinct(ScalarMatches(sql)),
		Tables:     distinct(TableMatches(sql)),
		Lists:      distinct(ListMatches(sql)),
		CommaLists: distinct(CommaListMatches(sql)),
	}
	seen := map[string]bool{}
	for _, group := range [][]string{ph.Scalars, ph.Tables, ph.Lists, ph.CommaLists} {
		for _, name := range group {
			if seen[name] {
				return nil, qerr.NameConflict(name)
			}
			seen[name] = true
		}
	}
	return ph, nil
}
