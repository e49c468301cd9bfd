// Package migrations embeds the attachment index schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
