package db

import "embed"

// MigrationFS embeds the users, sessions and token_blacklist migrations from internal/db/migrations.
// Used by the migrate runner (cmd/migrate) to apply them.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
