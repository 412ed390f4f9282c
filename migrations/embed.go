package migrations

import "embed"

// FS holds the embedded SQL migrations, organized per database engine.
//
//go:embed postgres/*.sql
var FS embed.FS
