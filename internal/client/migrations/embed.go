// Package migrations embeds the client SQLite schema for goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
