package sharingkeys

import (
	"context"

	"github.com/avoronov/planvault/internal/server/models"
)

// Repository stores registered public sharing keys, at most one per user.
type Repository interface {
	// Upsert registers or replaces the user's public key. Idempotent.
	Upsert(ctx context.Context, userID string, publicKey []byte) error

	// GetByUserID returns the user's registered key or common.ErrorNotFound.
	GetByUserID(ctx context.Context, userID string) (*models.SharingKey, error)

	// GetByEmail resolves an email to (userID, public key) or common.ErrorNotFound.
	GetByEmail(ctx context.Context, email string) (*models.SharingKey, error)
}
