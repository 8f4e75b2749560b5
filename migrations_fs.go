package xbridge

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the bridge schema for every supported dialect; sqlite
// alternatives live under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

func GetMigrationsFS() fs.FS {
	return migrationsFS
}
