package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	// Name is the configuration name and the migrations subdirectory.
	Name string
	// DriverName is the database/sql driver to open.
	DriverName string

	goose      goose.Dialect
	numbered   bool
	timeAsText bool
}

var (
	// Postgres uses $N placeholders and native timestamptz columns.
	Postgres = Dialect{
		Name:       "postgres",
		DriverName: "pgx",
		goose:      goose.DialectPostgres,
		numbered:   true,
	}

	// SQLite uses ? placeholders and stores timestamps as fixed-width UTC text
	// so that string comparison orders them correctly.
	SQLite = Dialect{
		Name:       "sqlite",
		DriverName: "sqlite",
		goose:      goose.DialectSQLite3,
		timeAsText: true,
	}
)

// DialectFor returns the dialect configured under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// timeLayout is fixed width so lexical order equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Time encodes t as a query argument.
func (d Dialect) Time(t time.Time) any {
	if d.timeAsText {
		return t.UTC().Format(timeLayout)
	}
	return t.UTC()
}

// NullTime encodes an optional timestamp as a query argument.
func (d Dialect) NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.Time(*t)
}

// placeholders returns n comma separated ? placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
