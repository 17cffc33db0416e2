package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"

	migrate "github.com/rubenv/sql-migrate"
)

// migrationTable records applied migrations by file name.
const migrationTable = "dropship_migrations"

// applyMigrations runs the Up section of every embedded .sql file not yet
// recorded in migrationTable, in name order. It returns how many ran.
func applyMigrations(ctx context.Context, db *sql.DB, migrationFS fs.FS) (int, error) {
	set := migrate.MigrationSet{TableName: migrationTable}
	src := &migrate.HttpFileSystemMigrationSource{FileSystem: http.FS(migrationFS)}
	n, err := set.ExecContext(ctx, db, "sqlite3", src, migrate.Up)
	if err != nil {
		return n, fmt.Errorf("apply migrations: %w", err)
	}
	return n, nil
}
