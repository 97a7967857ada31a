// Package localdb opens the client SQLite database and applies migrations.
package localdb

import (
	"context"
	"database/sql"

	"github.com/avoronov/planvault/internal/client/migrations"
	"github.com/avoronov/planvault/internal/client/repositories/localstate"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the local state database at dsn
// and returns the handle together with the state repository bound to it.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, localstate.Repository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	return db, localstate.NewSQLiteRepository(db), nil
}
