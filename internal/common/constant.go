package common

// AccessTokenHeaderName is the HTTP header carrying the bearer access token.
const AccessTokenHeaderName = "Authorization"

// KeySize is the symmetric key length (AES-256) used for the workspace
// master key and for share DEKs.
const KeySize = 32

// MinBlobSize is the smallest valid ciphertext blob: a 12-byte GCM nonce
// plus a 16-byte tag. A validly empty encrypted payload is exactly this
// size; anything smaller is rejected as malformed.
const MinBlobSize = 28

// Share permissions.
const (
	PermissionView = "view"
	PermissionEdit = "edit"
)
