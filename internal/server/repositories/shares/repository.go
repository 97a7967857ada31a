package shares

import (
	"context"

	"github.com/avoronov/planvault/internal/server/models"
)

// Repository is the share registry ledger. It stores shares and their
// recipients; it never mints or unwraps DEKs, callers hand it wrapped blobs.
type Repository interface {
	// Create inserts a new share row (version 1) with no recipients yet.
	Create(ctx context.Context, s *models.Share) (*models.Share, error)

	// GetByOwnerItem returns the share for (owner, item) with recipients
	// loaded, or common.ErrorNotFound.
	GetByOwnerItem(ctx context.Context, ownerID, itemID string) (*models.Share, error)

	// GetByID returns the share with recipients loaded, or common.ErrorNotFound.
	GetByID(ctx context.Context, shareID string) (*models.Share, error)

	// UpdateData replaces encrypted_item_data at the given version.
	// Same optimistic-concurrency contract as the workspace store, scoped
	// per share: rejected with *common.VersionConflictError unless
	// version > stored version.
	UpdateData(ctx context.Context, shareID string, data []byte, version int64) error

	// AddRecipient appends a recipient row to an existing share.
	AddRecipient(ctx context.Context, rec *models.Recipient) error

	// UpdateRecipient changes a recipient's permission and merge-accept flag.
	UpdateRecipient(ctx context.Context, shareID, userID, permission string, alwaysAccept bool) error

	// UpdateRecipientWrapping replaces one recipient's wrapped DEK. Used
	// after the recipient rotates their sharing key pair.
	UpdateRecipientWrapping(ctx context.Context, shareID, userID string, wrappedDEK []byte) error

	// RemoveRecipient deletes one recipient from a share.
	RemoveRecipient(ctx context.Context, shareID, userID string) error

	// Delete removes a share entirely; recipients cascade.
	Delete(ctx context.Context, shareID string) error

	// ListIncoming returns shares where user is a recipient.
	ListIncoming(ctx context.Context, userID string) ([]*models.Share, error)

	// ListOutgoing returns shares owned by user.
	ListOutgoing(ctx context.Context, userID string) ([]*models.Share, error)
}
