package repomanager

import (
	"context"
	"database/sql"

	"github.com/avoronov/planvault/internal/dbx"
	"github.com/avoronov/planvault/internal/server/migrations"
	"github.com/avoronov/planvault/internal/server/repositories/shares"
	"github.com/avoronov/planvault/internal/server/repositories/sharingkeys"
	"github.com/avoronov/planvault/internal/server/repositories/workspaces"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct {
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Workspaces(db dbx.DBTX) workspaces.Repository {
	return workspaces.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Shares(db dbx.DBTX) shares.Repository {
	return shares.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) SharingKeys(db dbx.DBTX) sharingkeys.Repository {
	return sharingkeys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}
