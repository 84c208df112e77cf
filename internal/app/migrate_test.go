package app

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metrature/db"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/metrature?sslmode=disable", MigrateURL("postgres://u:p@db:5432/metrature?sslmode=disable"))
	require.Equal(t, "pgx5://db/metrature", MigrateURL("postgresql://db/metrature"))
	require.Equal(t, "pgx5://db/metrature", MigrateURL("pgx5://db/metrature"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(db.Migrations, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(db.Migrations, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))

	schema, err := fs.ReadFile(db.Migrations, "migrations/000001_pricing_schema.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(schema), "WHERE enabled")

	windows, err := fs.ReadFile(db.Migrations, "migrations/000003_rule_windows_templates.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(windows), "daterange(valid_from, valid_till, '[]') WITH &&")
	require.Contains(t, string(windows), "CHECK (NOT mandatory OR default_selected)")
}
