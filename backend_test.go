// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlhub_test

import (
	"context"
	"database/sql"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/joho/godotenv"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlhub"
)

// BackendSuite runs the pipeline against whichever backends the environment
// provides a DSN for. Unset backends are skipped, so a plain `go test` run
// only covers sqlite3.
type BackendSuite struct{}

var _ = Suite(&BackendSuite{})

func (s *BackendSuite) SetUpSuite(_ *C) {
	// A .env file is optional, for local runs.
	_ = godotenv.Load()
}

func (s *BackendSuite) TestPostgres(c *C) {
	dsn := os.Getenv("SQLHUB_POSTGRES_DSN")
	if dsn == "" {
		c.Skip("SQLHUB_POSTGRES_DSN not set")
	}
	sqldb, err := sql.Open("postgres", dsn)
	c.Assert(err, IsNil)
	db := sqlhub.NewDB(sqldb, sqlhub.Postgres)
	runBackendChecks(c, db,
		"CREATE TABLE sqlhub_items (id integer, label text, price double precision, in_stock boolean)")
}

func (s *BackendSuite) TestMySQL(c *C) {
	dsn := os.Getenv("SQLHUB_MYSQL_DSN")
	if dsn == "" {
		c.Skip("SQLHUB_MYSQL_DSN not set")
	}
	sqldb, err := sql.Open("mysql", dsn)
	c.Assert(err, IsNil)
	db := sqlhub.NewDB(sqldb, sqlhub.MySQL)
	runBackendChecks(c, db,
		"CREATE TABLE sqlhub_items (id integer, label varchar(64), price double, in_stock tinyint(1))")
}

func (s *BackendSuite) TestLibSQL(c *C) {
	url := os.Getenv("SQLHUB_LIBSQL_URL")
	if url == "" {
		c.Skip("SQLHUB_LIBSQL_URL not set")
	}
	sqldb, err := sql.Open("libsql", url)
	c.Assert(err, IsNil)
	db := sqlhub.NewDB(sqldb, sqlhub.SQLite)
	runBackendChecks(c, db,
		"CREATE TABLE sqlhub_items (id integer, label text, price real, in_stock integer)")
}

var backendDefs = `{
	"add_item": {
		"query": "INSERT INTO sqlhub_items (id, label, price, in_stock) VALUES (@id, @label, @price, @in_stock)",
		"args": {"id": {"type": "integer"}, "price": {"type": "float"}, "in_stock": {"type": "boolean"}}
	},
	"items_in": {
		"query": "SELECT label FROM sqlhub_items WHERE id IN :[ids] ORDER BY id",
		"args": {"ids": {"itemtype": "integer"}},
		"returns": ["label"]
	},
	"item_fields": {
		"query": "SELECT ~[cols] FROM #[tbl] WHERE id = @id",
		"args": {"id": {"type": "integer"}},
		"returns": "~[cols]"
	},
	"stocked": {
		"query": "SELECT id, price FROM sqlhub_items WHERE in_stock = @flag ORDER BY id",
		"args": {"flag": {"type": "boolean"}},
		"returns": ["id", "price"]
	},
	"drop_items": {"query": "DROP TABLE sqlhub_items"}
}`

// runBackendChecks drives one backend through inserts, list expansion,
// dynamic columns and boolean binding. The fixture table is created with
// backend-native column types and dropped afterwards.
func runBackendChecks(c *C, db *sqlhub.DB, createSQL string) {
	qs, err := sqlhub.Parse([]byte(backendDefs))
	c.Assert(err, IsNil)
	ctx := context.Background()

	_, err = db.PlainDB().ExecContext(ctx, "DROP TABLE IF EXISTS sqlhub_items")
	c.Assert(err, IsNil)
	_, err = db.PlainDB().ExecContext(ctx, createSQL)
	c.Assert(err, IsNil)
	defer db.Run(ctx, qs, "drop_items", nil)

	items := []sqlhub.M{
		{"id": 1, "label": "bolt", "price": 0.5, "in_stock": true},
		{"id": 2, "label": "nut", "price": 0.2, "in_stock": false},
		{"id": 3, "label": "washer", "price": 0.1, "in_stock": true},
	}
	for _, item := range items {
		_, err := db.Run(ctx, qs, "add_item", item)
		c.Assert(err, IsNil)
	}

	results, err := db.Run(ctx, qs, "items_in", sqlhub.M{"ids": sqlhub.S{1, 3}})
	c.Assert(err, IsNil)
	c.Check(results.Rows, DeepEquals, []map[string]any{{"label": "bolt"}, {"label": "washer"}})

	results, err = db.Run(ctx, qs, "stocked", sqlhub.M{"flag": true})
	c.Assert(err, IsNil)
	c.Check(results.Rows, DeepEquals, []map[string]any{
		{"id": int64(1), "price": 0.5},
		{"id": int64(3), "price": 0.1},
	})

	results, err = db.Run(ctx, qs, "item_fields", sqlhub.M{
		"id":   2,
		"cols": sqlhub.S{"label", "in_stock"},
		"tbl":  "sqlhub_items",
	})
	c.Assert(err, IsNil)
	c.Assert(results.Rows, HasLen, 1)
	c.Check(results.Rows[0]["label"], Equals, "nut")
}
