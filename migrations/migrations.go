// Package migrations embeds the SQL schema applied by goose on startup.
package migrations

import "embed"

// FS holds the *.sql migrations.
//
//go:embed *.sql
var FS embed.FS
