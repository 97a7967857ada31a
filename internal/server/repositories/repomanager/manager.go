package repomanager

import (
	"context"
	"database/sql"

	"github.com/avoronov/planvault/internal/dbx"
	"github.com/avoronov/planvault/internal/server/repositories/shares"
	"github.com/avoronov/planvault/internal/server/repositories/sharingkeys"
	"github.com/avoronov/planvault/internal/server/repositories/workspaces"
)

// RepositoryManager hands out repositories bound to a DBTX, so services can
// use the same repository code inside and outside transactions.
type RepositoryManager interface {
	Workspaces(db dbx.DBTX) workspaces.Repository
	Shares(db dbx.DBTX) shares.Repository
	SharingKeys(db dbx.DBTX) sharingkeys.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
