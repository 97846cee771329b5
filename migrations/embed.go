package migrations

import "embed"

// FS holds the goose migrations shipped with the cli binary.
//
//go:embed *.sql
var FS embed.FS
