// Package migrations embeds the asset cache schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
