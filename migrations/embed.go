// Package migrations embeds the engine's schema migration files so a
// deployed binary carries its own schema history and needs no migration
// directory on disk.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
