// Package migrations holds the SQL schema applied to every tenant schema by goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
