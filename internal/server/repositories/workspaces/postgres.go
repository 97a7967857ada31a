// Package workspaces provides the PostgreSQL-backed workspace version store.
package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/dbx"
	"github.com/avoronov/planvault/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.Workspace, error) {
	query := `SELECT user_id, blob, version, device_id, updated_at FROM workspaces WHERE user_id=$1`

	w := &models.Workspace{}
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&w.UserID, &w.Blob, &w.Version, &w.DeviceID, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return w, nil
}

// Put performs the compare-and-swap upsert. The WHERE clause on the upsert
// leaves zero rows affected when the stored version is not strictly below
// the incoming one; the stored version is then re-read so the caller learns
// the authoritative value without another round trip.
func (r *PostgresRepository) Put(ctx context.Context, w *models.Workspace) error {
	query := `
		INSERT INTO workspaces (user_id, blob, version, device_id, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id)
		DO UPDATE SET
			blob = EXCLUDED.blob,
			version = EXCLUDED.version,
			device_id = EXCLUDED.device_id,
			updated_at = now()
			WHERE workspaces.version < EXCLUDED.version;
	`
	res, err := r.db.ExecContext(ctx, query, w.UserID, w.Blob, w.Version, w.DeviceID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		current, err := r.currentVersion(ctx, w.UserID)
		if err != nil {
			return err
		}
		return &common.VersionConflictError{Current: current}
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) currentVersion(ctx context.Context, userID string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM workspaces WHERE user_id=$1`, userID).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}
