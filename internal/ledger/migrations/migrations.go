// Package migrations embeds the goose migrations shared by the SQL ledgers
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
