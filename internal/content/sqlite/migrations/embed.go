// Package migrations embeds the content store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
