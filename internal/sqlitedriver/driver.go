// Package sqlitedriver registers the pure-Go SQLite driver under the name
// "sqlite3" for database/sql. The stores in this repository open their
// databases through this name so the driver choice stays in one place.
//
// Import this package for its side effects only:
//
//	import _ "github.com/teradata-labs/spindle/internal/sqlitedriver"
package sqlitedriver

import (
	"database/sql"

	"modernc.org/sqlite"
)

func init() {
	sql.Register("sqlite3", &sqlite.Driver{})
}
