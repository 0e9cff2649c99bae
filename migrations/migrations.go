// Package migrations embeds the SQL schema of the durable job stores.
package migrations

import "embed"

// FS holds one directory of golang-migrate files per database driver.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Directory names inside FS.
const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)
