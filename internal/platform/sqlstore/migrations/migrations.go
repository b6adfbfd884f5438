// Package migrations embeds the SQL schema migrations, one directory per dialect.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite/*.sql in goose format.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
