// Package shares provides the PostgreSQL-backed share registry.
package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/dbx"
	"github.com/avoronov/planvault/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Share) (*models.Share, error) {
	query := `
		INSERT INTO shares (id, owner_id, item_id, encrypted_item_data, wrapped_dek_owner, version)
		VALUES ($1, $2, $3, $4, $5, 1)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.ID, s.OwnerID, s.ItemID, s.EncryptedItemData, s.WrappedDEKOwner).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.Version = 1
	return s, nil
}

const shareColumns = `id, owner_id, item_id, encrypted_item_data, wrapped_dek_owner, version, created_at, updated_at`

func (r *PostgresRepository) GetByOwnerItem(ctx context.Context, ownerID, itemID string) (*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE owner_id=$1 AND item_id=$2`
	return r.getOne(ctx, query, ownerID, itemID)
}

func (r *PostgresRepository) GetByID(ctx context.Context, shareID string) (*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id=$1`
	return r.getOne(ctx, query, shareID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Share, error) {
	s := &models.Share{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&s.ID, &s.OwnerID, &s.ItemID, &s.EncryptedItemData, &s.WrappedDEKOwner,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := r.loadRecipients(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) loadRecipients(ctx context.Context, s *models.Share) error {
	query := `
		SELECT share_id, user_id, permission, wrapped_dek, always_accept, created_at
		FROM share_recipients WHERE share_id=$1 ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, s.ID)
	if err != nil {
		return fmt.Errorf("failed to select recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.Recipient
		if err := rows.Scan(&rec.ShareID, &rec.UserID, &rec.Permission,
			&rec.WrappedDEK, &rec.AlwaysAccept, &rec.CreatedAt); err != nil {
			return err
		}
		s.Recipients = append(s.Recipients, rec)
	}
	return rows.Err()
}

func (r *PostgresRepository) UpdateData(ctx context.Context, shareID string, data []byte, version int64) error {
	query := `
		UPDATE shares SET encrypted_item_data=$2, version=$3, updated_at=now()
		WHERE id=$1 AND version < $3
	`
	res, err := r.db.ExecContext(ctx, query, shareID, data, version)
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
		var current int64
		err := r.db.QueryRowContext(ctx, `SELECT version FROM shares WHERE id=$1`, shareID).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return common.ErrorNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}
		return &common.VersionConflictError{Current: current}
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) AddRecipient(ctx context.Context, rec *models.Recipient) error {
	query := `
		INSERT INTO share_recipients (share_id, user_id, permission, wrapped_dek, always_accept)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ShareID, rec.UserID, rec.Permission, rec.WrappedDEK, rec.AlwaysAccept)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateRecipient(ctx context.Context, shareID, userID, permission string, alwaysAccept bool) error {
	query := `
		UPDATE share_recipients SET permission=$3, always_accept=$4
		WHERE share_id=$1 AND user_id=$2
	`
	return r.execExpectOne(ctx, query, shareID, userID, permission, alwaysAccept)
}

func (r *PostgresRepository) UpdateRecipientWrapping(ctx context.Context, shareID, userID string, wrappedDEK []byte) error {
	query := `
		UPDATE share_recipients SET wrapped_dek=$3
		WHERE share_id=$1 AND user_id=$2
	`
	return r.execExpectOne(ctx, query, shareID, userID, wrappedDEK)
}

func (r *PostgresRepository) RemoveRecipient(ctx context.Context, shareID, userID string) error {
	query := `DELETE FROM share_recipients WHERE share_id=$1 AND user_id=$2`
	return r.execExpectOne(ctx, query, shareID, userID)
}

func (r *PostgresRepository) Delete(ctx context.Context, shareID string) error {
	query := `DELETE FROM shares WHERE id=$1`
	return r.execExpectOne(ctx, query, shareID)
}

func (r *PostgresRepository) execExpectOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListIncoming(ctx context.Context, userID string) ([]*models.Share, error) {
	query := `
		SELECT s.id, s.owner_id, s.item_id, s.encrypted_item_data, s.wrapped_dek_owner,
			s.version, s.created_at, s.updated_at,
			r.permission, r.wrapped_dek, r.always_accept, r.created_at
		FROM shares s
		JOIN share_recipients r ON r.share_id = s.id
		WHERE r.user_id=$1
		ORDER BY s.created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select incoming shares: %w", err)
	}
	defer rows.Close()

	var result []*models.Share
	for rows.Next() {
		s := &models.Share{}
		rec := models.Recipient{UserID: userID}
		if err := rows.Scan(
			&s.ID, &s.OwnerID, &s.ItemID, &s.EncryptedItemData, &s.WrappedDEKOwner,
			&s.Version, &s.CreatedAt, &s.UpdatedAt,
			&rec.Permission, &rec.WrappedDEK, &rec.AlwaysAccept, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.ShareID = s.ID
		s.Recipients = []models.Recipient{rec}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListOutgoing(ctx context.Context, userID string) ([]*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE owner_id=$1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select outgoing shares: %w", err)
	}
	defer rows.Close()

	var result []*models.Share
	for rows.Next() {
		s := &models.Share{}
		if err := rows.Scan(
			&s.ID, &s.OwnerID, &s.ItemID, &s.EncryptedItemData, &s.WrappedDEKOwner,
			&s.Version, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, s := range result {
		if err := r.loadRecipients(ctx, s); err != nil {
			return nil, err
		}
	}
	return result, nil
}
