package models

import "time"

// SharingKey is a user's registered public sharing key. At most one row
// per user; registration is an idempotent upsert. Accounts themselves are
// created and authenticated by the external auth collaborator.
type SharingKey struct {
	UserID    string
	PublicKey []byte
	UpdatedAt time.Time
}
