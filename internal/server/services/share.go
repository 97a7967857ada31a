package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/dbx"
	"github.com/avoronov/planvault/internal/server/models"
	"github.com/avoronov/planvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ShareService implements the share registry operations and the
// authorization invariant: only the owner or an edit recipient may push
// new encrypted item data.
type ShareService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewShareService(db *sql.DB, m repomanager.RepositoryManager) *ShareService {
	return &ShareService{db: db, repomanager: m}
}

// CreateShareParams carries everything the owner's client prepared: the item
// ciphertext under the share DEK, the DEK wrapped for the recipient, and the
// DEK wrapped under the owner's master key.
type CreateShareParams struct {
	OwnerID                string
	ItemID                 string
	RecipientID            string
	Permission             string
	EncryptedItemData      []byte
	WrappedDEKForRecipient []byte
	WrappedDEKForOwner     []byte
}

// CreateShare creates a share on first use or appends a recipient to an
// existing one. When the share exists, the stored encrypted_item_data and
// owner wrapping are reused untouched: the registry never mints DEKs, and
// the caller is expected to have unwrapped the existing DEK (via the owner
// wrapping) and re-wrapped it for the new recipient.
func (s *ShareService) CreateShare(ctx context.Context, p CreateShareParams) (*models.Share, error) {
	if !common.IsValidPermission(p.Permission) {
		return nil, fmt.Errorf("%w: unknown permission %q", common.ErrorInternal, p.Permission)
	}
	if len(p.EncryptedItemData) < common.MinBlobSize {
		return nil, common.ErrMalformedBlob
	}
	if p.RecipientID == p.OwnerID {
		return nil, fmt.Errorf("%w: cannot share with self", common.ErrForbidden)
	}

	var result *models.Share
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Shares(tx)

		share, err := repo.GetByOwnerItem(ctx, p.OwnerID, p.ItemID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			share, err = repo.Create(ctx, &models.Share{
				ID:                uuid.NewString(),
				OwnerID:           p.OwnerID,
				ItemID:            p.ItemID,
				EncryptedItemData: p.EncryptedItemData,
				WrappedDEKOwner:   p.WrappedDEKForOwner,
			})
			if err != nil {
				return err
			}
		case err != nil:
			return err
		}

		for _, rec := range share.Recipients {
			if rec.UserID == p.RecipientID {
				return fmt.Errorf("recipient already present: %w", common.ErrorInternal)
			}
		}

		rec := &models.Recipient{
			ShareID:    share.ID,
			UserID:     p.RecipientID,
			Permission: p.Permission,
			WrappedDEK: p.WrappedDEKForRecipient,
		}
		if err := repo.AddRecipient(ctx, rec); err != nil {
			return err
		}
		share.Recipients = append(share.Recipients, *rec)

		result = share
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateShareData pushes new encrypted item data under the share's own
// version counter. Only the owner or a recipient with edit permission may
// push; a view recipient gets ErrForbidden.
func (s *ShareService) UpdateShareData(ctx context.Context, callerID, shareID string, data []byte, version int64) (int64, error) {
	if len(data) < common.MinBlobSize {
		return 0, common.ErrMalformedBlob
	}

	repo := s.repomanager.Shares(s.db)

	share, err := repo.GetByID(ctx, shareID)
	if err != nil {
		return 0, err
	}
	if err := canPush(share, callerID); err != nil {
		return 0, err
	}

	if err := repo.UpdateData(ctx, shareID, data, version); err != nil {
		return 0, err
	}
	return version, nil
}

func canPush(share *models.Share, callerID string) error {
	if share.OwnerID == callerID {
		return nil
	}
	for _, rec := range share.Recipients {
		if rec.UserID == callerID {
			if rec.Permission == common.PermissionEdit {
				return nil
			}
			return common.ErrForbidden
		}
	}
	return common.ErrForbidden
}

// UpdateRecipient changes a recipient's permission or merge-accept flag.
// Owner only.
func (s *ShareService) UpdateRecipient(ctx context.Context, callerID, shareID, recipientID, permission string, alwaysAccept bool) error {
	if !common.IsValidPermission(permission) {
		return fmt.Errorf("%w: unknown permission %q", common.ErrorInternal, permission)
	}
	repo := s.repomanager.Shares(s.db)

	share, err := repo.GetByID(ctx, shareID)
	if err != nil {
		return err
	}
	if share.OwnerID != callerID {
		return common.ErrForbidden
	}
	return repo.UpdateRecipient(ctx, shareID, recipientID, permission, alwaysAccept)
}

// UpdateRecipientWrapping lets a recipient replace their own wrapped DEK
// after rotating their sharing key pair. Only the recipient themselves may
// call this; the plaintext DEK never changes, just its wrapping.
func (s *ShareService) UpdateRecipientWrapping(ctx context.Context, callerID, shareID string, wrappedDEK []byte) error {
	if len(wrappedDEK) < common.MinBlobSize {
		return common.ErrMalformedBlob
	}
	repo := s.repomanager.Shares(s.db)

	share, err := repo.GetByID(ctx, shareID)
	if err != nil {
		return err
	}
	for _, rec := range share.Recipients {
		if rec.UserID == callerID {
			return repo.UpdateRecipientWrapping(ctx, shareID, callerID, wrappedDEK)
		}
	}
	return common.ErrForbidden
}

// RevokeRecipient removes one recipient from a share. Owner only.
func (s *ShareService) RevokeRecipient(ctx context.Context, callerID, shareID, recipientID string) error {
	repo := s.repomanager.Shares(s.db)

	share, err := repo.GetByID(ctx, shareID)
	if err != nil {
		return err
	}
	if share.OwnerID != callerID {
		return common.ErrForbidden
	}
	return repo.RemoveRecipient(ctx, shareID, recipientID)
}

// DeleteShare revokes sharing entirely; recipient rows cascade. Owner only.
func (s *ShareService) DeleteShare(ctx context.Context, callerID, shareID string) error {
	repo := s.repomanager.Shares(s.db)

	share, err := repo.GetByID(ctx, shareID)
	if err != nil {
		return err
	}
	if share.OwnerID != callerID {
		return common.ErrForbidden
	}
	return repo.Delete(ctx, shareID)
}

// ListIncoming returns shares where the caller is a recipient. Each share
// carries only the caller's own recipient row.
func (s *ShareService) ListIncoming(ctx context.Context, callerID string) ([]*models.Share, error) {
	return s.repomanager.Shares(s.db).ListIncoming(ctx, callerID)
}

// ListOutgoing returns shares the caller owns, with all recipients loaded.
func (s *ShareService) ListOutgoing(ctx context.Context, callerID string) ([]*models.Share, error) {
	return s.repomanager.Shares(s.db).ListOutgoing(ctx, callerID)
}
