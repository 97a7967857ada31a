package workspaces

import (
	"context"

	"github.com/avoronov/planvault/internal/server/models"
)

// Repository is the workspace version store: one encrypted blob row per
// user, gated by a monotonically increasing version.
type Repository interface {
	// Get returns the user's workspace, or common.ErrorNotFound when the
	// user has never pushed one.
	Get(ctx context.Context, userID string) (*models.Workspace, error)

	// Put upserts the blob at the given version. Accepted iff no row
	// exists yet or version > stored version; otherwise a
	// *common.VersionConflictError carrying the stored version.
	Put(ctx context.Context, w *models.Workspace) error
}
