// Package migrations embeds the SQL schema of the inventory database so the
// binary can migrate without the files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root. Pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
