// Package migrations embeds the SQL schema of the catalog database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
