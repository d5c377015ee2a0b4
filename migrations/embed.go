// Package migrations embeds the goose migrations for SQL-backed client storage.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
