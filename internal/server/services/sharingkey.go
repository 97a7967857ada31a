package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/server/models"
	"github.com/avoronov/planvault/internal/server/repositories/repomanager"
)

// x25519PublicKeySize is the only accepted public key length.
const x25519PublicKeySize = 32

// SharingKeyService manages the public half of users' sharing key pairs.
type SharingKeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewSharingKeyService(db *sql.DB, m repomanager.RepositoryManager) *SharingKeyService {
	return &SharingKeyService{db: db, repomanager: m}
}

// Register upserts the caller's public key. Safe to call on every client
// start; replacing the key invalidates wrapped DEKs made under the old one,
// which the client is expected to re-wrap at rotation time.
func (s *SharingKeyService) Register(ctx context.Context, userID string, publicKey []byte) error {
	if len(publicKey) != x25519PublicKeySize {
		return fmt.Errorf("%w: bad public key length %d", common.ErrMalformedBlob, len(publicKey))
	}
	return s.repomanager.SharingKeys(s.db).Upsert(ctx, userID, publicKey)
}

// LookupByEmail resolves a counterparty's registered public key.
func (s *SharingKeyService) LookupByEmail(ctx context.Context, email string) (*models.SharingKey, error) {
	return s.repomanager.SharingKeys(s.db).GetByEmail(ctx, email)
}

// LookupByUserID resolves a user's registered public key.
func (s *SharingKeyService) LookupByUserID(ctx context.Context, userID string) (*models.SharingKey, error) {
	return s.repomanager.SharingKeys(s.db).GetByUserID(ctx, userID)
}
