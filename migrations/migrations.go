// Package migrations embeds the schema migration files so the binary can
// migrate without a deployed migrations directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
