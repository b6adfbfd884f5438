// Package sqlstore implements store.Backend on database/sql. The same queries
// serve PostgreSQL (through the pgx stdlib driver) and SQLite (through
// modernc.org/sqlite); Dialect covers the differences in placeholders and
// timestamp encoding. Schema migrations are embedded and applied with goose.
package sqlstore
