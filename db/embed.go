// Package db embeds the SQL migrations applied by the API and tools.
package db

import "embed"

// Migrations holds the golang-migrate source files.
//
//go:embed migrations/*.sql
var Migrations embed.FS
