package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avoronov/planvault/internal/common"
	"github.com/hashicorp/go-retryablehttp"
)

// RestClient talks JSON over HTTP with automatic retries for transient
// failures. Retries never apply to non-2xx responses carrying a decision
// (conflict, forbidden), only to transport-level errors and 5xx.
type RestClient struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewRestClient(baseURL string, timeout time.Duration) *RestClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil

	client := rc.StandardClient()
	client.Timeout = timeout

	return &RestClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}
}

func (c *RestClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *RestClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// wire DTOs, mirrored from the server

type workspaceDTO struct {
	Blob      *string    `json:"blob"`
	Version   int64      `json:"version"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type workspacePushDTO struct {
	Blob     string `json:"blob"`
	Version  int64  `json:"version"`
	DeviceID string `json:"deviceId,omitempty"`
}

type versionDTO struct {
	Version int64 `json:"version"`
}

type conflictDTO struct {
	CurrentVersion int64 `json:"currentVersion"`
}

type registerKeyDTO struct {
	PublicKey string `json:"publicKey"`
}

type publicKeyDTO struct {
	UserID    string `json:"userId"`
	PublicKey string `json:"publicKey"`
}

type createShareDTO struct {
	ItemID                 string `json:"itemId"`
	RecipientEmail         string `json:"recipientEmail"`
	Permission             string `json:"permission"`
	EncryptedItemData      string `json:"encryptedItemData"`
	WrappedDekForRecipient string `json:"wrappedDekForRecipient"`
	WrappedDekForOwner     string `json:"wrappedDekForOwner,omitempty"`
}

type shareDataDTO struct {
	Blob    string `json:"blob"`
	Version int64  `json:"version"`
}

type wrappingDTO struct {
	WrappedDek string `json:"wrappedDek"`
}

type recipientPatchDTO struct {
	Permission   string `json:"permission"`
	AlwaysAccept bool   `json:"alwaysAccept"`
}

type recipientDTO struct {
	UserID       string `json:"userId"`
	Permission   string `json:"permission"`
	WrappedDek   string `json:"wrappedDek,omitempty"`
	AlwaysAccept bool   `json:"alwaysAccept"`
}

type shareDTO struct {
	ID                string         `json:"id"`
	OwnerID           string         `json:"ownerId"`
	ItemID            string         `json:"itemId"`
	EncryptedItemData string         `json:"encryptedItemData"`
	WrappedDekOwner   string         `json:"wrappedDekOwner,omitempty"`
	Version           int64          `json:"version"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	Recipients        []recipientDTO `json:"recipients"`
}

func (c *RestClient) GetWorkspace(ctx context.Context) (*Workspace, error) {
	var dto workspaceDTO
	if err := c.do(ctx, http.MethodGet, "/api/workspace", nil, &dto); err != nil {
		return nil, err
	}

	w := &Workspace{Version: dto.Version, UpdatedAt: dto.UpdatedAt}
	if dto.Blob != nil {
		blob, err := base64.StdEncoding.DecodeString(*dto.Blob)
		if err != nil {
			return nil, fmt.Errorf("decoding workspace blob: %w", err)
		}
		w.Blob = blob
	}
	return w, nil
}

func (c *RestClient) PushWorkspace(ctx context.Context, blob []byte, version int64, deviceID string) (int64, error) {
	req := workspacePushDTO{
		Blob:     base64.StdEncoding.EncodeToString(blob),
		Version:  version,
		DeviceID: deviceID,
	}
	var resp versionDTO
	if err := c.do(ctx, http.MethodPost, "/api/workspace", req, &resp); err != nil {
		return 0, err
	}
	return resp.Version, nil
}

func (c *RestClient) RegisterSharingKey(ctx context.Context, publicKey []byte) error {
	req := registerKeyDTO{PublicKey: base64.StdEncoding.EncodeToString(publicKey)}
	return c.do(ctx, http.MethodPost, "/api/sharing/keys", req, nil)
}

func (c *RestClient) LookupSharingKey(ctx context.Context, email string) (*PublicKey, error) {
	return c.lookupKey(ctx, "/api/sharing/keys?email="+url.QueryEscape(email))
}

func (c *RestClient) LookupSharingKeyByUser(ctx context.Context, userID string) (*PublicKey, error) {
	return c.lookupKey(ctx, "/api/sharing/keys?userId="+url.QueryEscape(userID))
}

func (c *RestClient) lookupKey(ctx context.Context, path string) (*PublicKey, error) {
	var dto publicKeyDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return nil, err
	}

	key, err := base64.StdEncoding.DecodeString(dto.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	return &PublicKey{UserID: dto.UserID, PublicKey: key}, nil
}

func (c *RestClient) CreateShare(ctx context.Context, p CreateShareParams) (*Share, error) {
	req := createShareDTO{
		ItemID:                 p.ItemID,
		RecipientEmail:         p.RecipientEmail,
		Permission:             p.Permission,
		EncryptedItemData:      base64.StdEncoding.EncodeToString(p.EncryptedItemData),
		WrappedDekForRecipient: base64.StdEncoding.EncodeToString(p.WrappedDEKForRecipient),
		WrappedDekForOwner:     base64.StdEncoding.EncodeToString(p.WrappedDEKForOwner),
	}
	var dto shareDTO
	if err := c.do(ctx, http.MethodPost, "/api/shares", req, &dto); err != nil {
		return nil, err
	}
	return shareFromDTO(&dto)
}

func (c *RestClient) ListIncoming(ctx context.Context) ([]*Share, error) {
	return c.listShares(ctx, "/api/shares/incoming")
}

func (c *RestClient) ListOutgoing(ctx context.Context) ([]*Share, error) {
	return c.listShares(ctx, "/api/shares/outgoing")
}

func (c *RestClient) listShares(ctx context.Context, path string) ([]*Share, error) {
	var dtos []shareDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, err
	}

	shares := make([]*Share, 0, len(dtos))
	for n := range dtos {
		s, err := shareFromDTO(&dtos[n])
		if err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, nil
}

func (c *RestClient) PushShareData(ctx context.Context, shareID string, blob []byte, version int64) (int64, error) {
	req := shareDataDTO{Blob: base64.StdEncoding.EncodeToString(blob), Version: version}
	var resp versionDTO
	if err := c.do(ctx, http.MethodPut, "/api/shares/"+url.PathEscape(shareID)+"/data", req, &resp); err != nil {
		return 0, err
	}
	return resp.Version, nil
}

func (c *RestClient) UpdateRecipientWrapping(ctx context.Context, shareID string, wrappedDEK []byte) error {
	req := wrappingDTO{WrappedDek: base64.StdEncoding.EncodeToString(wrappedDEK)}
	return c.do(ctx, http.MethodPut, "/api/shares/"+url.PathEscape(shareID)+"/wrapping", req, nil)
}

func (c *RestClient) UpdateRecipient(ctx context.Context, shareID, userID, permission string, alwaysAccept bool) error {
	req := recipientPatchDTO{Permission: permission, AlwaysAccept: alwaysAccept}
	path := "/api/shares/" + url.PathEscape(shareID) + "/recipients/" + url.PathEscape(userID)
	return c.do(ctx, http.MethodPatch, path, req, nil)
}

func (c *RestClient) RevokeRecipient(ctx context.Context, shareID, userID string) error {
	path := "/api/shares/" + url.PathEscape(shareID) + "/recipients/" + url.PathEscape(userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *RestClient) DeleteShare(ctx context.Context, shareID string) error {
	return c.do(ctx, http.MethodDelete, "/api/shares/"+url.PathEscape(shareID), nil, nil)
}

// do sends one request and decodes the response into out (may be nil). Error
// statuses are translated to the shared taxonomy so callers can use errors.Is
// and errors.As without knowing about HTTP.
func (c *RestClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	return statusError(resp)
}

func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusConflict:
		var c conflictDTO
		if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
			return fmt.Errorf("%w: unreadable conflict body", common.ErrVersionConflict)
		}
		return &common.VersionConflictError{Current: c.CurrentVersion}
	case http.StatusBadRequest:
		return common.ErrMalformedBlob
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case http.StatusForbidden:
		return common.ErrForbidden
	case http.StatusNotFound:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("%w: unexpected status %d", common.ErrorInternal, resp.StatusCode)
	}
}

func shareFromDTO(dto *shareDTO) (*Share, error) {
	data, err := base64.StdEncoding.DecodeString(dto.EncryptedItemData)
	if err != nil {
		return nil, fmt.Errorf("decoding share data: %w", err)
	}

	s := &Share{
		ID:                dto.ID,
		OwnerID:           dto.OwnerID,
		ItemID:            dto.ItemID,
		EncryptedItemData: data,
		Version:           dto.Version,
		UpdatedAt:         dto.UpdatedAt,
	}

	if dto.WrappedDekOwner != "" {
		if s.WrappedDEKOwner, err = base64.StdEncoding.DecodeString(dto.WrappedDekOwner); err != nil {
			return nil, fmt.Errorf("decoding owner wrapping: %w", err)
		}
	}

	for _, r := range dto.Recipients {
		rec := Recipient{UserID: r.UserID, Permission: r.Permission, AlwaysAccept: r.AlwaysAccept}
		if r.WrappedDek != "" {
			if rec.WrappedDEK, err = base64.StdEncoding.DecodeString(r.WrappedDek); err != nil {
				return nil, fmt.Errorf("decoding recipient wrapping: %w", err)
			}
		}
		s.Recipients = append(s.Recipients, rec)
	}

	return s, nil
}
