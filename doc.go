/*
Package sqlhub runs named, parameterized SQL queries defined in JSON documents.

A definitions document maps query names to SQL text annotated with typed placeholders,
an argument schema describing each placeholder's type and constraints, and a declaration
of the fields each row should be returned under.
The document is compiled once with [Parse]; queries are then run by name with a JSON object
of runtime arguments, and rows come back as JSON-shaped maps.
Placeholder values never reach the SQL text: scalars bind as driver parameters, and the
identifier-like placeholders are validated before they are spliced in.

# Definitions

A minimal document with one read and one mutation:

	{
	    "user_by_id": {
	        "query":   "SELECT id, name FROM users WHERE id = @id",
	        "returns": ["id", "name"],
	        "args":    {"id": {"type": "integer", "range": [1, 1000000]}}
	    },
	    "delete_user": {
	        "query": "DELETE FROM users WHERE id = @id",
	        "args":  {"id": {"type": "integer"}}
	    }
	}

A query with a non-empty "returns" is a read and runs as a single statement.
A query without "returns" is a mutation; its SQL may hold several statements separated
by semicolons, each executed in order inside the same transaction.
"returns" may also be the string "~[name]", naming a comma-list parameter whose runtime
value supplies the field list.

# Placeholder syntax

The placeholder form decides how a parameter is declared and substituted:

 1. @name
    - A scalar bound as a driver parameter. Scalars default to strings; the schema may
    declare integer, float, boolean, blob, table_name or list instead.

 2. #name or #[name]
    - A table name. The value must be a plain identifier and is spliced in quoted.

 3. :[name]
    - A list, expanded to one driver parameter per element inside parentheses,
    as needed by IN clauses.

 4. ~[name]
    - A comma-list of identifiers, spliced in quoted and comma separated, for
    column lists in SELECT or INSERT.

Placeholders inside string literals are left untouched.

# Running queries

	queries, err := sqlhub.ParseFile("queries.json")
	...
	db := sqlhub.NewDB(sqldb, sqlhub.SQLite)
	results, err := db.Run(ctx, queries, "user_by_id", sqlhub.M{"id": 10})

[DB.Run] owns the transaction: begin, execute, commit, with a rollback on any failure.
To run several queries in one transaction use [DB.Begin] and [TX.Query].
Every error is an [Error] carrying a [Code] and, where it applies, the query name,
parameter name and the expected versus received value.
*/
package sqlhub
