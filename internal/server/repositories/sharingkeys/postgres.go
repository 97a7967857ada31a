// Package sharingkeys provides the PostgreSQL-backed public-key registry.
package sharingkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/dbx"
	"github.com/avoronov/planvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, userID string, publicKey []byte) error {
	query := `
		INSERT INTO sharing_keys (user_id, public_key, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id)
		DO UPDATE SET public_key = EXCLUDED.public_key, updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, userID, publicKey); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*models.SharingKey, error) {
	query := `SELECT user_id, public_key, updated_at FROM sharing_keys WHERE user_id=$1`
	return r.getOne(ctx, query, userID)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.SharingKey, error) {
	query := `
		SELECT k.user_id, k.public_key, k.updated_at
		FROM sharing_keys k
		JOIN users u ON u.id = k.user_id
		WHERE u.email=$1
	`
	return r.getOne(ctx, query, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.SharingKey, error) {
	k := &models.SharingKey{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&k.UserID, &k.PublicKey, &k.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}
