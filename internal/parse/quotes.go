// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package parse provides the lexical layer of sqlhub: quote tracking,
// statement splitting and placeholder extraction. It understands just
// enough SQL to know which parts of a query are string literals; the
// surrounding grammar is left to the database.
package parse

import "strings"

// InQuotes reports whether the byte at offset lies inside a single or
// double quoted region of text. A backslash escapes exactly the next
// character, and the two quote kinds are mutually exclusive: a single
// quote inside a double quoted region does not open a new string. The
// opening quote itself counts as inside the region.
func InQuotes(text string, offset int) bool {
	var single, double, escaped bool
	for i := 0; i < len(text) && i <= offset; i++ {
		if escaped {
			escaped = false
			continue
		}
		switch text[i] {
		case '\\':
			escaped = true
		case '\'':
			if !double {
				single = !single
			}
		case '"':
			if !single {
				double = !double
			}
		}
	}
	return single || double
}

// SplitStatements splits sql on semicolons that sit outside string
// literals. Each statement is returned trimmed of surrounding whitespace;
// empty statements are dropped. The fragment after the last semicolon is
// included when non-empty.
func SplitStatements(sql string) []string {
	var statements []string
	var inString bool
	var quote byte
	start := 0
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case !inString && (c == '\'' || c == '"'):
			inString = true
			quote = c
		case inString && c == quote:
			inString = false
		case !inString && c == ';':
			if s := strings.TrimSpace(sql[start:i]); s != "" {
				statements = append(statements, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(sql[start:]); s != "" {
		statements = append(statements, s)
	}
	return statements
}

// transactionKeywords are rejected in query definitions: transactions
// belong to the caller, never to a definition's SQL.
var transactionKeywords = []string{
	"BEGIN",
	"COMMIT",
	"ROLLBACK",
	"START TRANSACTION",
	"END TRANSACTION",
}

// HasTransactionKeyword reports whether sql contains one of the
// transaction control keywords, matched case-insensitively as a
// substring.
func HasTransactionKeyword(sql string) bool {
	upper := strings.ToUpper(sql)
	for _, kw := range transactionKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
