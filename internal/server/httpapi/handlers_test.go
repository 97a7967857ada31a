package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/dbx"
	"github.com/avoronov/planvault/internal/logging"
	"github.com/avoronov/planvault/internal/server/auth"
	"github.com/avoronov/planvault/internal/server/models"
	sharesrepo "github.com/avoronov/planvault/internal/server/repositories/shares"
	sharingkeysrepo "github.com/avoronov/planvault/internal/server/repositories/sharingkeys"
	workspacesrepo "github.com/avoronov/planvault/internal/server/repositories/workspaces"
	"github.com/avoronov/planvault/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// --- in-memory repos ---

type memWorkspaces struct {
	rows map[string]*models.Workspace
}

func (m *memWorkspaces) Get(ctx context.Context, userID string) (*models.Workspace, error) {
	w, ok := m.rows[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return w, nil
}

func (m *memWorkspaces) Put(ctx context.Context, w *models.Workspace) error {
	if cur, ok := m.rows[w.UserID]; ok && w.Version <= cur.Version {
		return &common.VersionConflictError{Current: cur.Version}
	}
	w.UpdatedAt = time.Now()
	m.rows[w.UserID] = w
	return nil
}

type memShares struct {
	rows map[string]*models.Share
}

func (m *memShares) Create(ctx context.Context, s *models.Share) (*models.Share, error) {
	s.Version = 1
	m.rows[s.ID] = s
	return s, nil
}

func (m *memShares) GetByOwnerItem(ctx context.Context, ownerID, itemID string) (*models.Share, error) {
	for _, s := range m.rows {
		if s.OwnerID == ownerID && s.ItemID == itemID {
			return s, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memShares) GetByID(ctx context.Context, shareID string) (*models.Share, error) {
	s, ok := m.rows[shareID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return s, nil
}

func (m *memShares) UpdateData(ctx context.Context, shareID string, data []byte, version int64) error {
	s, ok := m.rows[shareID]
	if !ok {
		return common.ErrorNotFound
	}
	if version <= s.Version {
		return &common.VersionConflictError{Current: s.Version}
	}
	s.EncryptedItemData = data
	s.Version = version
	return nil
}

func (m *memShares) AddRecipient(ctx context.Context, rec *models.Recipient) error {
	s := m.rows[rec.ShareID]
	s.Recipients = append(s.Recipients, *rec)
	return nil
}

func (m *memShares) UpdateRecipient(ctx context.Context, shareID, userID, permission string, alwaysAccept bool) error {
	s, ok := m.rows[shareID]
	if !ok {
		return common.ErrorNotFound
	}
	for i := range s.Recipients {
		if s.Recipients[i].UserID == userID {
			s.Recipients[i].Permission = permission
			s.Recipients[i].AlwaysAccept = alwaysAccept
			return nil
		}
	}
	return common.ErrorNotFound
}

func (m *memShares) UpdateRecipientWrapping(ctx context.Context, shareID, userID string, wrappedDEK []byte) error {
	s, ok := m.rows[shareID]
	if !ok {
		return common.ErrorNotFound
	}
	for i := range s.Recipients {
		if s.Recipients[i].UserID == userID {
			s.Recipients[i].WrappedDEK = wrappedDEK
			return nil
		}
	}
	return common.ErrorNotFound
}

func (m *memShares) RemoveRecipient(ctx context.Context, shareID, userID string) error {
	s, ok := m.rows[shareID]
	if !ok {
		return common.ErrorNotFound
	}
	for i := range s.Recipients {
		if s.Recipients[i].UserID == userID {
			s.Recipients = append(s.Recipients[:i], s.Recipients[i+1:]...)
			return nil
		}
	}
	return common.ErrorNotFound
}

func (m *memShares) Delete(ctx context.Context, shareID string) error {
	delete(m.rows, shareID)
	return nil
}

func (m *memShares) ListIncoming(ctx context.Context, userID string) ([]*models.Share, error) {
	var out []*models.Share
	for _, s := range m.rows {
		for _, rec := range s.Recipients {
			if rec.UserID == userID {
				copied := *s
				copied.Recipients = []models.Recipient{rec}
				out = append(out, &copied)
			}
		}
	}
	return out, nil
}

func (m *memShares) ListOutgoing(ctx context.Context, userID string) ([]*models.Share, error) {
	var out []*models.Share
	for _, s := range m.rows {
		if s.OwnerID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

type memSharingKeys struct {
	byUser  map[string][]byte
	byEmail map[string]string
}

func (m *memSharingKeys) Upsert(ctx context.Context, userID string, publicKey []byte) error {
	m.byUser[userID] = publicKey
	return nil
}

func (m *memSharingKeys) GetByUserID(ctx context.Context, userID string) (*models.SharingKey, error) {
	k, ok := m.byUser[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &models.SharingKey{UserID: userID, PublicKey: k}, nil
}

func (m *memSharingKeys) GetByEmail(ctx context.Context, email string) (*models.SharingKey, error) {
	id, ok := m.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return m.GetByUserID(ctx, id)
}

type memRepoManager struct {
	w *memWorkspaces
	s *memShares
	k *memSharingKeys
}

func (m *memRepoManager) Workspaces(db dbx.DBTX) workspacesrepo.Repository   { return m.w }
func (m *memRepoManager) Shares(db dbx.DBTX) sharesrepo.Repository           { return m.s }
func (m *memRepoManager) SharingKeys(db dbx.DBTX) sharingkeysrepo.Repository { return m.k }
func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error       { return nil }

// --- harness ---

type fixture struct {
	handler http.Handler
	shares  *memShares
	keys    *memSharingKeys
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rm := &memRepoManager{
		w: &memWorkspaces{rows: make(map[string]*models.Workspace)},
		s: &memShares{rows: make(map[string]*models.Share)},
		k: &memSharingKeys{byUser: make(map[string][]byte), byEmail: make(map[string]string)},
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	srv := NewServer(":0", logger,
		services.NewWorkspaceService(db, rm),
		services.NewShareService(db, rm),
		services.NewSharingKeyService(db, rm),
		testSecret)

	return &fixture{handler: srv.Handler(), shares: rm.s, keys: rm.k}
}

func (f *fixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		token, err := auth.GenerateToken(userID, userID+"@example.com", []byte(testSecret), time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func validBlob(n int) []byte {
	b := make([]byte, common.MinBlobSize+4)
	b[0] = byte(n)
	return b
}

// --- tests ---

func TestAuth_MissingToken(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/workspace", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWorkspace_EmptyThenPushThenConflict(t *testing.T) {
	f := newFixture(t)

	// Empty workspace: version 0, null blob.
	rec := f.do(t, http.MethodGet, "/api/workspace", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got workspaceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(0), got.Version)
	assert.Nil(t, got.Blob)

	// First push at version 1, then version 2.
	for v := int64(1); v <= 2; v++ {
		rec = f.do(t, http.MethodPost, "/api/workspace", "u1", workspacePushRequest{
			Blob: b64(validBlob(int(v))), Version: v, DeviceID: "dev-a",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var vr versionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vr))
		assert.Equal(t, v, vr.Version)
	}

	// Second device pushes stale version 1: 409 with currentVersion 2.
	rec = f.do(t, http.MethodPost, "/api/workspace", "u1", workspacePushRequest{
		Blob: b64(validBlob(9)), Version: 1, DeviceID: "dev-b",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict conflictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, int64(2), conflict.CurrentVersion)
}

func TestWorkspace_NegativeVersionIsConflict(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/workspace", "u1", workspacePushRequest{
		Blob: b64(validBlob(1)), Version: -1, DeviceID: "dev-a",
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var conflict conflictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, int64(0), conflict.CurrentVersion)

	// With a stored workspace the conflict reports its version.
	rec = f.do(t, http.MethodPost, "/api/workspace", "u1", workspacePushRequest{
		Blob: b64(validBlob(2)), Version: 2, DeviceID: "dev-a",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/workspace", "u1", workspacePushRequest{
		Blob: b64(validBlob(3)), Version: -1, DeviceID: "dev-b",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, int64(2), conflict.CurrentVersion)
}

func TestWorkspace_MalformedBlob(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/workspace", "u1", workspacePushRequest{
		Blob: b64(make([]byte, 10)), Version: 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSharingKeys_RegisterAndLookup(t *testing.T) {
	f := newFixture(t)
	f.keys.byEmail["u1@example.com"] = "u1"

	key := make([]byte, 32)
	key[0] = 7

	rec := f.do(t, http.MethodPost, "/api/sharing/keys", "u1", registerKeyRequest{PublicKey: b64(key)})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/sharing/keys?email=u1@example.com", "u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp publicKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, b64(key), resp.PublicKey)

	rec = f.do(t, http.MethodGet, "/api/sharing/keys?email=nobody@example.com", "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func seedShare(f *fixture, permission string) *models.Share {
	s := &models.Share{
		ID: "s1", OwnerID: "owner", ItemID: "item-1",
		EncryptedItemData: validBlob(1),
		WrappedDEKOwner:   []byte("wdek-owner"),
		Version:           1,
		Recipients: []models.Recipient{
			{ShareID: "s1", UserID: "bob", Permission: permission, WrappedDEK: []byte("wdek-bob")},
		},
	}
	f.shares.rows[s.ID] = s
	return s
}

func TestShareData_ViewForbiddenEditAllowed(t *testing.T) {
	f := newFixture(t)
	seedShare(f, common.PermissionView)

	rec := f.do(t, http.MethodPut, "/api/shares/s1/data", "bob", shareDataRequest{
		Blob: b64(validBlob(2)), Version: 2,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Owner upgrades bob to edit.
	rec = f.do(t, http.MethodPatch, "/api/shares/s1/recipients/bob", "owner", recipientPatchRequest{
		Permission: common.PermissionEdit,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/shares/s1/data", "bob", shareDataRequest{
		Blob: b64(validBlob(2)), Version: 2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestShareData_Conflict(t *testing.T) {
	f := newFixture(t)
	seedShare(f, common.PermissionEdit)

	rec := f.do(t, http.MethodPut, "/api/shares/s1/data", "bob", shareDataRequest{
		Blob: b64(validBlob(2)), Version: 1,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict conflictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, int64(1), conflict.CurrentVersion)
}

func TestListIncoming_HidesOwnerWrappingAndOthers(t *testing.T) {
	f := newFixture(t)
	seedShare(f, common.PermissionView)

	rec := f.do(t, http.MethodGet, "/api/shares/incoming", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var shares []shareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shares))
	require.Len(t, shares, 1)

	s := shares[0]
	assert.Empty(t, s.WrappedDekOwner, "owner wrapping must not leak to recipients")
	require.Len(t, s.Recipients, 1)
	assert.Equal(t, "bob", s.Recipients[0].UserID)
	assert.Equal(t, b64([]byte("wdek-bob")), s.Recipients[0].WrappedDek)
}

func TestDeleteShare_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	seedShare(f, common.PermissionEdit)

	rec := f.do(t, http.MethodDelete, "/api/shares/s1", "bob", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/shares/s1", "owner", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	if _, ok := f.shares.rows["s1"]; ok {
		t.Fatalf("share not deleted")
	}
}
