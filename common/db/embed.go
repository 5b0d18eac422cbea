package db

import "embed"

// MigrationsFS contains the schema migrations embedded at compile time.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
