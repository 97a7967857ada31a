package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeShareRepo is an in-memory share registry with the same version
// semantics as the postgres implementation.
type fakeShareRepo struct {
	shares map[string]*models.Share
}

func newFakeShareRepo() *fakeShareRepo {
	return &fakeShareRepo{shares: make(map[string]*models.Share)}
}

// copyShare materializes a fresh struct the way the postgres repo does per
// query, so callers never alias the fake's stored state.
func copyShare(s *models.Share) *models.Share {
	copied := *s
	copied.Recipients = append([]models.Recipient(nil), s.Recipients...)
	return &copied
}

func (f *fakeShareRepo) Create(ctx context.Context, s *models.Share) (*models.Share, error) {
	s.Version = 1
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	f.shares[s.ID] = copyShare(s)
	return s, nil
}

func (f *fakeShareRepo) GetByOwnerItem(ctx context.Context, ownerID, itemID string) (*models.Share, error) {
	for _, s := range f.shares {
		if s.OwnerID == ownerID && s.ItemID == itemID {
			return copyShare(s), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeShareRepo) GetByID(ctx context.Context, shareID string) (*models.Share, error) {
	s, ok := f.shares[shareID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyShare(s), nil
}

func (f *fakeShareRepo) UpdateData(ctx context.Context, shareID string, data []byte, version int64) error {
	s, ok := f.shares[shareID]
	if !ok {
		return common.ErrorNotFound
	}
	if version <= s.Version {
		return &common.VersionConflictError{Current: s.Version}
	}
	s.EncryptedItemData = data
	s.Version = version
	s.UpdatedAt = time.Now()
	return nil
}

func (f *fakeShareRepo) AddRecipient(ctx context.Context, rec *models.Recipient) error {
	s, ok := f.shares[rec.ShareID]
	if !ok {
		return common.ErrorNotFound
	}
	s.Recipients = append(s.Recipients, *rec)
	return nil
}

func (f *fakeShareRepo) UpdateRecipient(ctx context.Context, shareID, userID, permission string, alwaysAccept bool) error {
	s, ok := f.shares[shareID]
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

func (f *fakeShareRepo) UpdateRecipientWrapping(ctx context.Context, shareID, userID string, wrappedDEK []byte) error {
	s, ok := f.shares[shareID]
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

func (f *fakeShareRepo) RemoveRecipient(ctx context.Context, shareID, userID string) error {
	s, ok := f.shares[shareID]
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

func (f *fakeShareRepo) Delete(ctx context.Context, shareID string) error {
	if _, ok := f.shares[shareID]; !ok {
		return common.ErrorNotFound
	}
	delete(f.shares, shareID)
	return nil
}

func (f *fakeShareRepo) ListIncoming(ctx context.Context, userID string) ([]*models.Share, error) {
	var result []*models.Share
	for _, s := range f.shares {
		for _, rec := range s.Recipients {
			if rec.UserID == userID {
				copied := *s
				copied.Recipients = []models.Recipient{rec}
				result = append(result, &copied)
			}
		}
	}
	return result, nil
}

func (f *fakeShareRepo) ListOutgoing(ctx context.Context, userID string) ([]*models.Share, error) {
	var result []*models.Share
	for _, s := range f.shares {
		if s.OwnerID == userID {
			result = append(result, copyShare(s))
		}
	}
	return result, nil
}

func validBlob(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, common.MinBlobSize+8)
}

func newShareService(t *testing.T) (*ShareService, *fakeShareRepo, func()) {
	t.Helper()
	db, mock := newMockDB(t)
	repo := newFakeShareRepo()
	svc := NewShareService(db, &fakeRepoManager{s: repo})

	// CreateShare wraps its work in a transaction; the fakes do the real
	// work, so the mock only has to accept begin/commit pairs.
	expectTx := func() {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	return svc, repo, expectTx
}

func TestCreateShare_FirstRecipient(t *testing.T) {
	svc, _, expectTx := newShareService(t)
	expectTx()

	share, err := svc.CreateShare(context.Background(), CreateShareParams{
		OwnerID:                "owner",
		ItemID:                 "item-1",
		RecipientID:            "bob",
		Permission:             common.PermissionView,
		EncryptedItemData:      validBlob(1),
		WrappedDEKForRecipient: []byte("wrapped-for-bob"),
		WrappedDEKForOwner:     []byte("wrapped-for-owner"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), share.Version)
	require.Len(t, share.Recipients, 1)
	assert.Equal(t, "bob", share.Recipients[0].UserID)
}

func TestCreateShare_SecondRecipientReusesDEK(t *testing.T) {
	svc, _, expectTx := newShareService(t)
	ctx := context.Background()

	originalData := validBlob(1)

	expectTx()
	first, err := svc.CreateShare(ctx, CreateShareParams{
		OwnerID: "owner", ItemID: "item-1", RecipientID: "bob",
		Permission:             common.PermissionView,
		EncryptedItemData:      originalData,
		WrappedDEKForRecipient: []byte("wrapped-for-bob"),
		WrappedDEKForOwner:     []byte("wrapped-for-owner"),
	})
	require.NoError(t, err)

	// Adding carol passes different item data; the registry must keep the
	// original ciphertext (same DEK) and only append the recipient.
	expectTx()
	second, err := svc.CreateShare(ctx, CreateShareParams{
		OwnerID: "owner", ItemID: "item-1", RecipientID: "carol",
		Permission:             common.PermissionEdit,
		EncryptedItemData:      validBlob(2),
		WrappedDEKForRecipient: []byte("wrapped-for-carol"),
		WrappedDEKForOwner:     []byte("ignored"),
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, originalData, second.EncryptedItemData)
	assert.Equal(t, []byte("wrapped-for-owner"), second.WrappedDEKOwner)
	require.Len(t, second.Recipients, 2)
}

func TestCreateShare_SelfShareForbidden(t *testing.T) {
	svc, _, _ := newShareService(t)

	_, err := svc.CreateShare(context.Background(), CreateShareParams{
		OwnerID: "owner", ItemID: "item-1", RecipientID: "owner",
		Permission:        common.PermissionView,
		EncryptedItemData: validBlob(1),
	})
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestCreateShare_ShortDataMalformed(t *testing.T) {
	svc, _, _ := newShareService(t)

	_, err := svc.CreateShare(context.Background(), CreateShareParams{
		OwnerID: "owner", ItemID: "item-1", RecipientID: "bob",
		Permission:        common.PermissionView,
		EncryptedItemData: make([]byte, 10),
	})
	assert.ErrorIs(t, err, common.ErrMalformedBlob)
}

func seedShare(t *testing.T, svc *ShareService, expectTx func(), permission string) *models.Share {
	t.Helper()
	expectTx()
	share, err := svc.CreateShare(context.Background(), CreateShareParams{
		OwnerID: "owner", ItemID: "item-1", RecipientID: "bob",
		Permission:             permission,
		EncryptedItemData:      validBlob(1),
		WrappedDEKForRecipient: []byte("wrapped-for-bob"),
		WrappedDEKForOwner:     []byte("wrapped-for-owner"),
	})
	require.NoError(t, err)
	return share
}

func TestUpdateShareData_ViewRecipientForbiddenThenEditSucceeds(t *testing.T) {
	svc, _, expectTx := newShareService(t)
	ctx := context.Background()

	share := seedShare(t, svc, expectTx, common.PermissionView)

	_, err := svc.UpdateShareData(ctx, "bob", share.ID, validBlob(3), share.Version+1)
	require.ErrorIs(t, err, common.ErrForbidden)

	require.NoError(t, svc.UpdateRecipient(ctx, "owner", share.ID, "bob", common.PermissionEdit, false))

	v, err := svc.UpdateShareData(ctx, "bob", share.ID, validBlob(3), share.Version+1)
	require.NoError(t, err)
	assert.Equal(t, share.Version+1, v)
}

func TestUpdateShareData_OwnerAllowed(t *testing.T) {
	svc, _, expectTx := newShareService(t)
	share := seedShare(t, svc, expectTx, common.PermissionView)

	v, err := svc.UpdateShareData(context.Background(), "owner", share.ID, validBlob(4), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestUpdateShareData_StrangerForbidden(t *testing.T) {
	svc, _, expectTx := newShareService(t)
	share := seedShare(t, svc, expectTx, common.PermissionEdit)

	_, err := svc.UpdateShareData(context.Background(), "mallory", share.ID, validBlob(4), 2)
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestUpdateShareData_StaleVersionConflict(t *testing.T) {
	svc, _, expectTx := newShareService(t)
	share := seedShare(t, svc, expectTx, common.PermissionEdit)
	ctx := context.Background()

	_, err := svc.UpdateShareData(ctx, "owner", share.ID, validBlob(4), 2)
	require.NoError(t, err)

	_, err = svc.UpdateShareData(ctx, "bob", share.ID, validBlob(5), 2)
	var vc *common.VersionConflictError
	require.ErrorAs(t, err, &vc)
	assert.Equal(t, int64(2), vc.Current)
}

func TestRecipientAdmin_OwnerOnly(t *testing.T) {
	svc, repo, expectTx := newShareService(t)
	share := seedShare(t, svc, expectTx, common.PermissionView)
	ctx := context.Background()

	assert.ErrorIs(t, svc.UpdateRecipient(ctx, "bob", share.ID, "bob", common.PermissionEdit, false), common.ErrForbidden)
	assert.ErrorIs(t, svc.RevokeRecipient(ctx, "bob", share.ID, "bob"), common.ErrForbidden)
	assert.ErrorIs(t, svc.DeleteShare(ctx, "bob", share.ID), common.ErrForbidden)

	require.NoError(t, svc.DeleteShare(ctx, "owner", share.ID))
	assert.Empty(t, repo.shares)
}

func TestUpdateRecipientWrapping_SelfOnly(t *testing.T) {
	svc, repo, expectTx := newShareService(t)
	share := seedShare(t, svc, expectTx, common.PermissionView)
	ctx := context.Background()

	rewrapped := validBlob(7)

	// only the recipient themselves may replace their wrapping
	assert.ErrorIs(t, svc.UpdateRecipientWrapping(ctx, "owner", share.ID, rewrapped), common.ErrForbidden)
	assert.ErrorIs(t, svc.UpdateRecipientWrapping(ctx, "mallory", share.ID, rewrapped), common.ErrForbidden)

	assert.ErrorIs(t, svc.UpdateRecipientWrapping(ctx, "bob", share.ID, make([]byte, 10)), common.ErrMalformedBlob)

	require.NoError(t, svc.UpdateRecipientWrapping(ctx, "bob", share.ID, rewrapped))
	assert.Equal(t, rewrapped, repo.shares[share.ID].Recipients[0].WrappedDEK)
}

func TestListIncomingOutgoing(t *testing.T) {
	svc, _, expectTx := newShareService(t)
	share := seedShare(t, svc, expectTx, common.PermissionView)
	ctx := context.Background()

	in, err := svc.ListIncoming(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, share.ID, in[0].ID)

	out, err := svc.ListOutgoing(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, out, 1)

	none, err := svc.ListIncoming(ctx, "owner")
	require.NoError(t, err)
	assert.Empty(t, none)
}
