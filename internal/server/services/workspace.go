// Package services contains server-side business logic for the workspace
// version store and the share registry. All payloads are ciphertext; the
// services validate versions and permissions, never content.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/server/models"
	"github.com/avoronov/planvault/internal/server/repositories/repomanager"
)

// WorkspaceService implements the workspace blob versioning protocol.
type WorkspaceService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewWorkspaceService(db *sql.DB, m repomanager.RepositoryManager) *WorkspaceService {
	return &WorkspaceService{db: db, repomanager: m}
}

// Get returns the user's workspace. "No workspace yet" is not an error: the
// result has version 0 and a nil blob.
func (s *WorkspaceService) Get(ctx context.Context, userID string) (*models.Workspace, error) {
	repo := s.repomanager.Workspaces(s.db)

	w, err := repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &models.Workspace{UserID: userID, Version: 0}, nil
		}
		return nil, fmt.Errorf("error getting workspace: %w", err)
	}
	return w, nil
}

// Put stores the blob at the given version. The write is accepted only when
// it strictly exceeds the stored version; a rejection carries the
// authoritative current version. Blobs below the authenticated-cipher floor
// are rejected as malformed regardless of version.
func (s *WorkspaceService) Put(ctx context.Context, userID string, blob []byte, version int64, deviceID string) (int64, error) {
	if len(blob) < common.MinBlobSize {
		return 0, common.ErrMalformedBlob
	}

	repo := s.repomanager.Workspaces(s.db)

	// A non-positive version can never exceed the stored one, but the upsert
	// would accept it as a first write. Reject it as a conflict carrying the
	// authoritative version, same as any other stale push.
	if version < 1 {
		current := int64(0)
		switch w, err := repo.Get(ctx, userID); {
		case err == nil:
			current = w.Version
		case !errors.Is(err, common.ErrorNotFound):
			return 0, err
		}
		return 0, &common.VersionConflictError{Current: current}
	}
	w := &models.Workspace{UserID: userID, Blob: blob, Version: version, DeviceID: deviceID}
	if err := repo.Put(ctx, w); err != nil {
		return 0, err
	}
	return version, nil
}
