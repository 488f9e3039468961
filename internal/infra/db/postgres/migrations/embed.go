// Package migrations embeds the goose migrations of the quotes table.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
