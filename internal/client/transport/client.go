// Package transport implements the REST client the planvault CLI uses to
// talk to the backend.
package transport

import (
	"context"
	"time"
)

// Workspace is the server's view of the encrypted workspace blob.
type Workspace struct {
	Blob      []byte
	Version   int64
	UpdatedAt *time.Time
}

// PublicKey is a registered sharing key resolved by email.
type PublicKey struct {
	UserID    string
	PublicKey []byte
}

type Recipient struct {
	UserID       string
	Permission   string
	WrappedDEK   []byte
	AlwaysAccept bool
}

// Share mirrors the server share record as visible to the caller. WrappedDEK
// fields are present only where the server chose to reveal them.
type Share struct {
	ID                string
	OwnerID           string
	ItemID            string
	EncryptedItemData []byte
	WrappedDEKOwner   []byte
	Version           int64
	UpdatedAt         time.Time
	Recipients        []Recipient
}

type CreateShareParams struct {
	ItemID                 string
	RecipientEmail         string
	Permission             string
	EncryptedItemData      []byte
	WrappedDEKForRecipient []byte
	WrappedDEKForOwner     []byte
}

// Client is the backend API surface the sync engines depend on. Failures map
// onto the common error taxonomy: version rejections come back as
// *common.VersionConflictError, permission denials as common.ErrForbidden,
// unreachable servers as wrapped common.ErrNetwork.
type Client interface {
	SetToken(token string)

	GetWorkspace(ctx context.Context) (*Workspace, error)
	PushWorkspace(ctx context.Context, blob []byte, version int64, deviceID string) (int64, error)

	RegisterSharingKey(ctx context.Context, publicKey []byte) error
	LookupSharingKey(ctx context.Context, email string) (*PublicKey, error)
	LookupSharingKeyByUser(ctx context.Context, userID string) (*PublicKey, error)

	CreateShare(ctx context.Context, p CreateShareParams) (*Share, error)
	ListIncoming(ctx context.Context) ([]*Share, error)
	ListOutgoing(ctx context.Context) ([]*Share, error)
	PushShareData(ctx context.Context, shareID string, blob []byte, version int64) (int64, error)
	UpdateRecipientWrapping(ctx context.Context, shareID string, wrappedDEK []byte) error
	UpdateRecipient(ctx context.Context, shareID, userID, permission string, alwaysAccept bool) error
	RevokeRecipient(ctx context.Context, shareID, userID string) error
	DeleteShare(ctx context.Context, shareID string) error
}
