package localstate

import "context"

// Well-known state keys. Values are raw bytes; callers own the encoding.
const (
	KeyPrivateSharingKey = "sharing_private_key"
	KeyPublicSharingKey  = "sharing_public_key"
	KeyDeviceID          = "device_id"
	KeyAccessToken       = "access_token"
	KeyWorkspaceBlob     = "workspace_blob"
	KeyWorkspaceVersion  = "workspace_version"
	KeyKeySalt           = "key_salt"
	KeyVerifier          = "key_verifier"
)

// Repository is the local key-value state store of the client. It keeps the
// private sharing key, the cached workspace blob and small bits of device
// state between runs.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
