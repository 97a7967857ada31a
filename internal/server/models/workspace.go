// Package models defines server-side data models. All payload fields hold
// ciphertext; the server never sees plaintext or plaintext-decrypting keys.
package models

import "time"

// Workspace is the single versioned row per user holding the encrypted
// workspace blob. Blob is opaque: nonce, ciphertext, and tag framed as one
// byte string by the client.
type Workspace struct {
	UserID    string
	Blob      []byte
	Version   int64
	DeviceID  string
	UpdatedAt time.Time
}
