// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlhub

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync/atomic"

	"github.com/canonical/sqlhub/internal/engine"
	"github.com/canonical/sqlhub/internal/qerr"
)

// M is a convenience type for passing runtime arguments by name.
//
// Example:
//
//	results, err := db.Run(ctx, queries, "user_by_id", sqlhub.M{"id": 10})
//
// M is not a special type, any value that marshals to a JSON object can be
// used as arguments.
type M map[string]any

// S is a convenience slice type for the value of a list or comma-list
// argument inside an [M].
type S []any

// Dialect selects the database backend queries are built for.
type Dialect = engine.Dialect

// The supported dialects.
var (
	SQLite   = engine.SQLite
	Postgres = engine.Postgres
	MySQL    = engine.MySQL
)

var ErrTXDone = sql.ErrTxDone

// stmtCache stores the driver prepared statements associated with each DB.
var stmtCache = newStatementCache()

// Queries is a compiled definitions document. It is immutable and can be
// shared freely; the same Queries can be run on any [DB].
type Queries struct {
	defs map[string]*engine.QueryDef
}

// Parse compiles a JSON definitions document.
func Parse(data []byte) (*Queries, error) {
	defs, err := engine.ParseDefinitions(data)
	if err != nil {
		return nil, err
	}
	return &Queries{defs: defs}, nil
}

// ParseReader compiles a definitions document read from r.
func ParseReader(r io.Reader) (*Queries, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, qerr.IO(err)
	}
	return Parse(data)
}

// ParseFile compiles the definitions document at path.
func ParseFile(path string) (*Queries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, qerr.IO(err)
	}
	return Parse(data)
}

// Names returns the names of all queries in the document, sorted.
func (qs *Queries) Names() []string {
	names := make([]string, 0, len(qs.defs))
	for name := range qs.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// build looks up a query by name, brings the arguments into the JSON
// domain, validates them and renders the statements for the dialect.
func (qs *Queries) build(name string, args any, dialect Dialect) (*engine.QueryDef, map[string]any, []engine.Statement, error) {
	def, ok := qs.defs[name]
	if !ok {
		return nil, nil, nil, qerr.QueryNotFound(name)
	}
	argMap, err := parseArgs(args)
	if err != nil {
		return nil, nil, nil, err
	}
	stmts, err := def.BuildStatements(dialect, argMap)
	if err != nil {
		return nil, nil, nil, err
	}
	return def, argMap, stmts, nil
}

// parseArgs converts runtime arguments to a decoded JSON object. nil
// means no arguments; []byte and json.RawMessage are decoded directly;
// anything else is marshalled first, so plain Go values work too.
func parseArgs(args any) (map[string]any, error) {
	var data []byte
	switch v := args.(type) {
	case nil:
		return map[string]any{}, nil
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		var err error
		data, err = json.Marshal(args)
		if err != nil {
			return nil, qerr.JSON(err)
		}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, qerr.JSON(err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, qerr.TypeMismatch("object", "provided arguments are not a JSON object")
	}
	return obj, nil
}

// Results holds the outcome of one query run: the statements sent to the
// driver in execution order, and the mapped rows. A mutation's Rows is
// empty, never nil.
type Results struct {
	Statements []string
	Rows       []map[string]any
}

type DB struct {
	// cacheID is used to look up the cached driver prepared statements
	// prepared on this database.
	cacheID int64
	// sqldb is the underlying database/sql DB object.
	sqldb *sql.DB
	// dialect adapts statement building and row reading to the backend.
	dialect Dialect
}

// NewDB creates a new [sqlhub.DB] from a [sql.DB] and the dialect of the
// driver behind it.
func NewDB(sqldb *sql.DB, dialect Dialect) *DB {
	if sqldb == nil {
		return nil
	}
	return stmtCache.newDB(sqldb, dialect)
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Dialect returns the dialect the DB was created with.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Query represents a query on a database. It is designed to be run once.
type Query struct {
	ctx  context.Context
	err  error
	tx   *TX
	def  *engine.QueryDef
	args map[string]any
	// stmts are the rendered statements, built when the Query is created.
	stmts []engine.Statement
}

// Run executes the query and returns its results. A read returns the
// mapped rows; a mutation executes each of its statements in order and
// returns an empty row set.
func (q *Query) Run() (*Results, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.tx.isDone() {
		return nil, ErrTXDone
	}
	return q.tx.execute(q.ctx, q.def, q.args, q.stmts)
}

// Run looks up the named query, validates args against it and runs it in
// its own transaction: begin, execute, commit, with a rollback on any
// failure. args may be nil, a []byte or json.RawMessage holding a JSON
// object, or any Go value that marshals to one.
func (db *DB) Run(ctx context.Context, queries *Queries, name string, args any) (*Results, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	def, argMap, stmts, err := queries.build(name, args, db.dialect)
	if err != nil {
		return nil, err
	}
	// Prepare before the transaction begins so that TX execution can pick
	// the statements up from the cache.
	for _, st := range stmts {
		if _, err := stmtCache.prepareStmt(ctx, db, db.sqldb, st.SQL); err != nil {
			return nil, qerr.Driver(err)
		}
	}
	tx, err := db.Begin(ctx, nil)
	if err != nil {
		return nil, err
	}
	results, err := tx.execute(ctx, def, argMap, stmts)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, qerr.Driver(err)
	}
	return results, nil
}

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

// Begin starts a transaction. A transaction must be ended with a
// [TX.Commit] or [TX.Rollback].
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, qerr.Driver(err)
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// TXOptions holds the transaction options to be used in [DB.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Query builds a new query from a context, the compiled queries, a query
// name and its runtime arguments. The arguments are validated and the
// statements rendered now; the query runs when [Query.Run] is called.
func (tx *TX) Query(ctx context.Context, queries *Queries, name string, args any) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.isDone() {
		return &Query{ctx: ctx, err: ErrTXDone}
	}
	def, argMap, stmts, err := queries.build(name, args, tx.db.dialect)
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}
	return &Query{ctx: ctx, tx: tx, def: def, args: argMap, stmts: stmts}
}

// execute runs the rendered statements on the transaction. A read has a
// single statement and maps its rows; a mutation executes each statement
// in order and stops at the first failure.
func (tx *TX) execute(ctx context.Context, def *engine.QueryDef, args map[string]any, stmts []engine.Statement) (*Results, error) {
	results := &Results{Statements: make([]string, 0, len(stmts)), Rows: []map[string]any{}}
	for _, st := range stmts {
		results.Statements = append(results.Statements, st.SQL)
		if def.IsRead() {
			rows, err := tx.queryContext(ctx, st)
			if err != nil {
				return nil, qerr.Driver(err)
			}
			mapped, err := engine.MapRows(rows, def.Fields(args), tx.db.dialect)
			if cerr := rows.Close(); err == nil && cerr != nil {
				err = qerr.Driver(cerr)
			}
			if err != nil {
				return nil, err
			}
			results.Rows = mapped
		} else {
			if _, err := tx.execContext(ctx, st); err != nil {
				return nil, qerr.Driver(err)
			}
		}
	}
	return results, nil
}

func (tx *TX) queryContext(ctx context.Context, st engine.Statement) (*sql.Rows, error) {
	if sqlstmt, ok := stmtCache.lookupStmt(tx.db, st.SQL); ok {
		// Register the prepared statement on the transaction. This does
		// not re-prepare it on the driver; database/sql closes the
		// transaction's handle when the transaction ends.
		return tx.sqltx.StmtContext(ctx, sqlstmt).QueryContext(ctx, st.Args...)
	}
	return tx.sqltx.QueryContext(ctx, st.SQL, st.Args...)
}

func (tx *TX) execContext(ctx context.Context, st engine.Statement) (sql.Result, error) {
	if sqlstmt, ok := stmtCache.lookupStmt(tx.db, st.SQL); ok {
		return tx.sqltx.StmtContext(ctx, sqlstmt).ExecContext(ctx, st.Args...)
	}
	return tx.sqltx.ExecContext(ctx, st.SQL, st.Args...)
}
