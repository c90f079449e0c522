// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlhub_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing/iotest"

	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlhub"
)

type PackageSuite struct{}

var _ = Suite(&PackageSuite{})

func setupDB() (*sql.DB, error) {
	return sql.Open("sqlite3", ":memory:")
}

func createExampleDB(createTables string, inserts []string) (*sql.DB, error) {
	db, err := setupDB()
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(createTables)
	if err != nil {
		return nil, err
	}
	for _, insert := range inserts {
		_, err := db.Exec(insert)
		if err != nil {
			return nil, err
		}
	}

	return db, nil
}

func usersAndOrdersDB() (*sql.DB, error) {
	createTables := `
CREATE TABLE users (
	id integer,
	name text,
	team text,
	active integer,
	avatar blob
);
CREATE TABLE orders (
	id integer,
	user_id integer,
	total real
);
`
	inserts := []string{
		"INSERT INTO users VALUES (1, 'Fred', 'engineering', 1, NULL);",
		"INSERT INTO users VALUES (2, 'Mark', 'engineering', 0, NULL);",
		"INSERT INTO users VALUES (3, 'Mary', 'design', 1, NULL);",
		"INSERT INTO users VALUES (4, 'James', 'design', 1, NULL);",
		"INSERT INTO orders VALUES (10, 1, 19.5);",
		"INSERT INTO orders VALUES (11, 2, 5.0);",
		"INSERT INTO orders VALUES (12, 1, 7.25);",
	}
	return createExampleDB(createTables, inserts)
}

var exampleDefs = `{
	"user_by_id": {
		"query": "SELECT id, name, team FROM users WHERE id = @id",
		"args": {"id": {"type": "integer", "range": [1, 1000000]}},
		"returns": ["id", "name", "team"]
	},
	"users_by_team": {
		"query": "SELECT id, name FROM users WHERE team = @team AND active = @active ORDER BY id",
		"args": {
			"team": {"enum": ["engineering", "design"]},
			"active": {"type": "boolean"}
		},
		"returns": ["id", "name"]
	},
	"users_in": {
		"query": "SELECT name FROM users WHERE id IN :[ids] ORDER BY id",
		"args": {"ids": {"itemtype": "integer"}},
		"returns": ["name"]
	},
	"pick_columns": {
		"query": "SELECT ~[cols] FROM #[tbl] ORDER BY id",
		"returns": "~[cols]"
	},
	"order_total": {
		"query": "SELECT total FROM orders WHERE id = @id",
		"args": {"id": {"type": "integer"}},
		"returns": ["total"]
	},
	"name_and_missing": {
		"query": "SELECT name FROM users WHERE id = @id",
		"args": {"id": {"type": "integer"}},
		"returns": ["name", "missing"]
	},
	"get_avatar": {
		"query": "SELECT avatar FROM users WHERE id = @id",
		"args": {"id": {"type": "integer"}},
		"returns": ["avatar"]
	},
	"set_avatar": {
		"query": "UPDATE users SET avatar = @data WHERE id = @id",
		"args": {"id": {"type": "integer"}, "data": {"type": "blob"}}
	},
	"add_user": {
		"query": "INSERT INTO users (id, name, team, active) VALUES (@id, @name, @team, @active)",
		"args": {"id": {"type": "integer"}, "active": {"type": "boolean"}}
	},
	"move_team": {
		"query": "UPDATE users SET team = @to WHERE team = @from; UPDATE users SET active = @flag WHERE team = @to",
		"args": {"flag": {"type": "boolean"}}
	}
}`

func (s *PackageSuite) exampleDB(c *C) (*sqlhub.DB, *sqlhub.Queries) {
	sqldb, err := usersAndOrdersDB()
	c.Assert(err, IsNil)
	qs, err := sqlhub.Parse([]byte(exampleDefs))
	c.Assert(err, IsNil)
	return sqlhub.NewDB(sqldb, sqlhub.SQLite), qs
}

func (s *PackageSuite) TestRunReads(c *C) {
	type userArgs struct {
		ID int `json:"id"`
	}

	db, qs := s.exampleDB(c)
	var tests = []struct {
		summary  string
		query    string
		args     any
		expected []map[string]any
	}{{
		summary:  "select by key",
		query:    "user_by_id",
		args:     sqlhub.M{"id": 1},
		expected: []map[string]any{{"id": int64(1), "name": "Fred", "team": "engineering"}},
	}, {
		summary:  "arguments from a struct",
		query:    "user_by_id",
		args:     userArgs{ID: 4},
		expected: []map[string]any{{"id": int64(4), "name": "James", "team": "design"}},
	}, {
		summary:  "enum and boolean filter",
		query:    "users_by_team",
		args:     sqlhub.M{"team": "engineering", "active": true},
		expected: []map[string]any{{"id": int64(1), "name": "Fred"}},
	}, {
		summary:  "list expansion",
		query:    "users_in",
		args:     sqlhub.M{"ids": sqlhub.S{1, 3}},
		expected: []map[string]any{{"name": "Fred"}, {"name": "Mary"}},
	}, {
		summary: "dynamic columns from a comma list",
		query:   "pick_columns",
		args:    sqlhub.M{"cols": sqlhub.S{"id", "team"}, "tbl": "users"},
		expected: []map[string]any{
			{"id": int64(1), "team": "engineering"},
			{"id": int64(2), "team": "engineering"},
			{"id": int64(3), "team": "design"},
			{"id": int64(4), "team": "design"},
		},
	}, {
		summary:  "real column",
		query:    "order_total",
		args:     sqlhub.M{"id": 10},
		expected: []map[string]any{{"total": 19.5}},
	}, {
		summary:  "return fields without a column are null",
		query:    "name_and_missing",
		args:     sqlhub.M{"id": 2},
		expected: []map[string]any{{"name": "Mark", "missing": nil}},
	}, {
		summary:  "null column",
		query:    "get_avatar",
		args:     sqlhub.M{"id": 2},
		expected: []map[string]any{{"avatar": nil}},
	}, {
		summary:  "empty result set",
		query:    "user_by_id",
		args:     sqlhub.M{"id": 999},
		expected: []map[string]any{},
	}}

	for _, t := range tests {
		results, err := db.Run(context.Background(), qs, t.query, t.args)
		c.Assert(err, IsNil, Commentf("test %q failed", t.summary))
		c.Check(results.Rows, DeepEquals, t.expected, Commentf("test %q failed", t.summary))
	}
}

func (s *PackageSuite) TestRunMutations(c *C) {
	db, qs := s.exampleDB(c)
	ctx := context.Background()

	results, err := db.Run(nil, qs, "add_user", sqlhub.M{"id": 5, "name": "Sam", "team": "design", "active": true})
	c.Assert(err, IsNil)
	c.Check(results.Rows, HasLen, 0)
	c.Check(results.Statements, DeepEquals, []string{
		"INSERT INTO users (id, name, team, active) VALUES (@id, @name, @team, @active)",
	})

	// A multi-statement mutation runs each statement with the parameters
	// it references.
	results, err = db.Run(ctx, qs, "move_team", sqlhub.M{"from": "design", "to": "qa", "flag": false})
	c.Assert(err, IsNil)
	c.Check(results.Statements, DeepEquals, []string{
		"UPDATE users SET team = @to WHERE team = @from",
		"UPDATE users SET active = @flag WHERE team = @to",
	})

	results, err = db.Run(ctx, qs, "user_by_id", sqlhub.M{"id": 3})
	c.Assert(err, IsNil)
	c.Check(results.Rows, DeepEquals, []map[string]any{{"id": int64(3), "name": "Mary", "team": "qa"}})
}

func (s *PackageSuite) TestBlobRoundTrip(c *C) {
	db, qs := s.exampleDB(c)
	ctx := context.Background()

	_, err := db.Run(ctx, qs, "set_avatar", sqlhub.M{"id": 1, "data": sqlhub.S{1, 2, 255}})
	c.Assert(err, IsNil)

	results, err := db.Run(ctx, qs, "get_avatar", sqlhub.M{"id": 1})
	c.Assert(err, IsNil)
	c.Assert(results.Rows, DeepEquals, []map[string]any{
		{"avatar": []any{int64(1), int64(2), int64(255)}},
	})
}

var registryDefs = `{
	"make_registry": {"query": "CREATE TABLE registry (k text PRIMARY KEY, v text)"},
	"put_twice": {"query": "INSERT INTO registry (k, v) VALUES (@k, @v); INSERT INTO registry (k, v) VALUES (@k, @v)"},
	"count_keys": {"query": "SELECT COUNT(*) AS n FROM registry", "returns": ["n"]}
}`

func (s *PackageSuite) TestRunRollsBackOnFailure(c *C) {
	sqldb, err := setupDB()
	c.Assert(err, IsNil)
	db := sqlhub.NewDB(sqldb, sqlhub.SQLite)
	qs, err := sqlhub.Parse([]byte(registryDefs))
	c.Assert(err, IsNil)
	ctx := context.Background()

	_, err = db.Run(ctx, qs, "make_registry", nil)
	c.Assert(err, IsNil)

	// The second statement violates the primary key. The first statement's
	// insert must be rolled back with it.
	_, err = db.Run(ctx, qs, "put_twice", sqlhub.M{"k": "dup", "v": "x"})
	c.Assert(err, ErrorMatches, "driver error: .*")
	c.Assert(errors.Is(err, sqlhub.ErrDriver), Equals, true)

	results, err := db.Run(ctx, qs, "count_keys", nil)
	c.Assert(err, IsNil)
	c.Assert(results.Rows, DeepEquals, []map[string]any{{"n": int64(0)}})
}

func (s *PackageSuite) TestTransactions(c *C) {
	db, qs := s.exampleDB(c)
	ctx := context.Background()

	tx, err := db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	_, err = tx.Query(ctx, qs, "add_user", sqlhub.M{"id": 9, "name": "Nina", "team": "engineering", "active": true}).Run()
	c.Assert(err, IsNil)

	// The transaction sees its own write.
	results, err := tx.Query(ctx, qs, "user_by_id", sqlhub.M{"id": 9}).Run()
	c.Assert(err, IsNil)
	c.Assert(results.Rows, DeepEquals, []map[string]any{{"id": int64(9), "name": "Nina", "team": "engineering"}})
	c.Assert(tx.Commit(), IsNil)

	// Committed and visible outside the transaction.
	results, err = db.Run(ctx, qs, "user_by_id", sqlhub.M{"id": 9})
	c.Assert(err, IsNil)
	c.Assert(results.Rows, HasLen, 1)

	// A done transaction rejects further queries.
	_, err = tx.Query(ctx, qs, "user_by_id", sqlhub.M{"id": 9}).Run()
	c.Assert(err, Equals, sqlhub.ErrTXDone)
	c.Assert(tx.Commit(), Equals, sqlhub.ErrTXDone)

	// Rolled back writes are discarded.
	tx, err = db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	_, err = tx.Query(ctx, qs, "add_user", sqlhub.M{"id": 12, "name": "Omar", "team": "design", "active": false}).Run()
	c.Assert(err, IsNil)
	c.Assert(tx.Rollback(), IsNil)
	results, err = db.Run(ctx, qs, "user_by_id", sqlhub.M{"id": 12})
	c.Assert(err, IsNil)
	c.Assert(results.Rows, HasLen, 0)
}

func (s *PackageSuite) TestRunErrors(c *C) {
	db, qs := s.exampleDB(c)
	var tests = []struct {
		summary string
		query   string
		args    any
		err     string
		target  error
	}{{
		summary: "unknown query name",
		query:   "missing",
		args:    nil,
		err:     `query "missing" not found`,
		target:  sqlhub.ErrQueryNotFound,
	}, {
		summary: "parameter not provided",
		query:   "user_by_id",
		args:    nil,
		err:     `parameter "id" not provided`,
		target:  sqlhub.ErrParameterNotProvided,
	}, {
		summary: "scalar type mismatch",
		query:   "user_by_id",
		args:    sqlhub.M{"id": "abc"},
		err:     `parameter type mismatch: expected integer, got "abc"`,
		target:  sqlhub.ErrParameterTypeMismatch,
	}, {
		summary: "range violation",
		query:   "user_by_id",
		args:    sqlhub.M{"id": 0},
		err:     `parameter type mismatch: expected value between 1 and 1000000, got 0`,
	}, {
		summary: "enum violation",
		query:   "users_by_team",
		args:    sqlhub.M{"team": "sales", "active": true},
		err:     `parameter type mismatch: expected one of \["engineering", "design"\], got "sales"`,
	}, {
		summary: "table name injection",
		query:   "pick_columns",
		args:    sqlhub.M{"cols": sqlhub.S{"id"}, "tbl": "users; --"},
		err:     `parameter type mismatch: expected valid table name \(alphanumeric and underscores only\), got users; --`,
	}, {
		summary: "column injection",
		query:   "pick_columns",
		args:    sqlhub.M{"cols": sqlhub.S{"id; DROP TABLE users"}, "tbl": "users"},
		err:     `parameter type mismatch: expected valid identifier \(alphanumeric and underscores only\) at index 0, got id; DROP TABLE users`,
	}, {
		summary: "arguments not an object",
		query:   "user_by_id",
		args:    json.RawMessage(`[1, 2]`),
		err:     `parameter type mismatch: expected object, got provided arguments are not a JSON object`,
	}}

	for _, t := range tests {
		_, err := db.Run(context.Background(), qs, t.query, t.args)
		c.Check(err, ErrorMatches, t.err, Commentf("test %q failed", t.summary))
		if t.target != nil {
			c.Check(errors.Is(err, t.target), Equals, true, Commentf("test %q failed", t.summary))
		}
	}
}

func (s *PackageSuite) TestErrorFields(c *C) {
	db, qs := s.exampleDB(c)

	_, err := db.Run(context.Background(), qs, "user_by_id", sqlhub.M{"id": "x"})
	var serr *sqlhub.Error
	c.Assert(errors.As(err, &serr), Equals, true)
	c.Check(serr.Code, Equals, sqlhub.CodeParameterTypeMismatch)
	c.Check(serr.Expected, Equals, "integer")
	c.Check(serr.Got, Equals, `"x"`)
}

func (s *PackageSuite) TestNames(c *C) {
	qs, err := sqlhub.Parse([]byte(exampleDefs))
	c.Assert(err, IsNil)
	c.Assert(qs.Names(), DeepEquals, []string{
		"add_user", "get_avatar", "move_team", "name_and_missing", "order_total",
		"pick_columns", "set_avatar", "user_by_id", "users_by_team", "users_in",
	})
}

func (s *PackageSuite) TestParseFileAndReader(c *C) {
	dir := c.MkDir()
	path := filepath.Join(dir, "queries.json")
	err := os.WriteFile(path, []byte(exampleDefs), 0644)
	c.Assert(err, IsNil)

	qs, err := sqlhub.ParseFile(path)
	c.Assert(err, IsNil)
	c.Assert(qs.Names(), HasLen, 10)

	_, err = sqlhub.ParseFile(filepath.Join(dir, "absent.json"))
	c.Assert(err, ErrorMatches, "io error: .*")
	c.Assert(errors.Is(err, sqlhub.ErrIO), Equals, true)

	qs, err = sqlhub.ParseReader(strings.NewReader(exampleDefs))
	c.Assert(err, IsNil)
	c.Assert(qs.Names(), HasLen, 10)

	_, err = sqlhub.ParseReader(iotest.ErrReader(errors.New("boom")))
	c.Assert(err, ErrorMatches, "io error: boom")
}

func (s *PackageSuite) TestErrorInfos(c *C) {
	infos := sqlhub.ErrorInfos()
	c.Assert(infos, HasLen, 8)
	c.Check(infos[0].Code, Equals, sqlhub.CodeIO)

	info, ok := sqlhub.ErrorInfoFor(sqlhub.CodeQueryNotFound)
	c.Assert(ok, Equals, true)
	c.Check(info.Name, Equals, "QUERY_NOT_FOUND")
	c.Check(info.Category, Equals, "Query")

	_, ok = sqlhub.ErrorInfoFor(sqlhub.Code(9999))
	c.Check(ok, Equals, false)
}

func (s *PackageSuite) TestPlainDBAndDialect(c *C) {
	sqldb, err := setupDB()
	c.Assert(err, IsNil)
	db := sqlhub.NewDB(sqldb, sqlhub.SQLite)
	c.Check(db.PlainDB(), Equals, sqldb)
	c.Check(db.Dialect(), Equals, sqlhub.SQLite)
	c.Check(db.Dialect().Name(), Equals, "sqlite3")
}
