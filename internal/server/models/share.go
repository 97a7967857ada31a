package models

import "time"

// Share identifies one shared source item owned by one user. Exactly one
// DEK exists per share: EncryptedItemData is the item plaintext encrypted
// once under that DEK, and WrappedDEKOwner is the same DEK wrapped under
// the owner's workspace master key. The DEK is never rotated in place.
type Share struct {
	ID                string
	OwnerID           string
	ItemID            string
	EncryptedItemData []byte
	WrappedDEKOwner   []byte
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Recipients []Recipient
}

// Recipient is one grantee on a share, holding the DEK wrapped for their
// public key and a permission level.
type Recipient struct {
	ShareID      string
	UserID       string
	Permission   string
	WrappedDEK   []byte
	AlwaysAccept bool
	CreatedAt    time.Time
}
