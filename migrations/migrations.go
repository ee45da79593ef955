// Package migrations embeds the SQL schema applied by installer-service at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
