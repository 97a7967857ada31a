package httpapi

import "time"

// Wire DTOs. All encrypted/wrapped values travel as base64 strings of the
// opaque blob framing (nonce ‖ ciphertext ‖ tag).

type workspaceResponse struct {
	Blob      *string    `json:"blob"`
	Version   int64      `json:"version"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type workspacePushRequest struct {
	Blob     string `json:"blob" binding:"required"`
	Version  int64  `json:"version" binding:"required"`
	DeviceID string `json:"deviceId"`
}

type versionResponse struct {
	Version int64 `json:"version"`
}

type conflictResponse struct {
	CurrentVersion int64 `json:"currentVersion"`
}

type registerKeyRequest struct {
	PublicKey string `json:"publicKey" binding:"required"`
}

type publicKeyResponse struct {
	UserID    string `json:"userId"`
	PublicKey string `json:"publicKey"`
}

type createShareRequest struct {
	ItemID                 string `json:"itemId" binding:"required"`
	RecipientEmail         string `json:"recipientEmail" binding:"required"`
	Permission             string `json:"permission" binding:"required"`
	EncryptedItemData      string `json:"encryptedItemData" binding:"required"`
	WrappedDekForRecipient string `json:"wrappedDekForRecipient" binding:"required"`
	WrappedDekForOwner     string `json:"wrappedDekForOwner"`
}

type shareDataRequest struct {
	Blob    string `json:"blob" binding:"required"`
	Version int64  `json:"version" binding:"required"`
}

type wrappingRequest struct {
	WrappedDek string `json:"wrappedDek" binding:"required"`
}

type recipientPatchRequest struct {
	Permission   string `json:"permission" binding:"required"`
	AlwaysAccept bool   `json:"alwaysAccept"`
}

type recipientResponse struct {
	UserID       string `json:"userId"`
	Permission   string `json:"permission"`
	WrappedDek   string `json:"wrappedDek,omitempty"`
	AlwaysAccept bool   `json:"alwaysAccept"`
}

type shareResponse struct {
	ID                string              `json:"id"`
	OwnerID           string              `json:"ownerId"`
	ItemID            string              `json:"itemId"`
	EncryptedItemData string              `json:"encryptedItemData"`
	WrappedDekOwner   string              `json:"wrappedDekOwner,omitempty"`
	Version           int64               `json:"version"`
	UpdatedAt         time.Time           `json:"updatedAt"`
	Recipients        []recipientResponse `json:"recipients"`
}

type errorResponse struct {
	Error string `json:"error"`
}
