package sharesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/avoronov/planvault/internal/client/models"
	"github.com/avoronov/planvault/internal/client/transport"
	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/cryptox"
	"github.com/avoronov/planvault/internal/keywrap"
	"github.com/avoronov/planvault/internal/logging"
)

// pushAttempts bounds the merge-and-retry loop of PushItem. Two attempts
// cover the common race; anything beyond that is surfaced to the caller.
const pushAttempts = 2

// API is the slice of the backend client the engine needs.
type API interface {
	LookupSharingKey(ctx context.Context, email string) (*transport.PublicKey, error)
	LookupSharingKeyByUser(ctx context.Context, userID string) (*transport.PublicKey, error)
	CreateShare(ctx context.Context, p transport.CreateShareParams) (*transport.Share, error)
	ListIncoming(ctx context.Context) ([]*transport.Share, error)
	ListOutgoing(ctx context.Context) ([]*transport.Share, error)
	PushShareData(ctx context.Context, shareID string, blob []byte, version int64) (int64, error)
	UpdateRecipientWrapping(ctx context.Context, shareID string, wrappedDEK []byte) error
}

// Keys provides the unwrapping material. Satisfied by keystore.Keyring.
// Implementations may report common.ErrMissingKeys from either method while
// key material is unavailable, for example before the keyring is unlocked;
// Fetch turns that into an empty result instead of an error.
type Keys interface {
	MasterKey() ([]byte, error)
	EnsureSharingKeyPair(ctx context.Context) (*keywrap.KeyPair, error)
}

// SharedItem is one decrypted share, incoming or owned.
type SharedItem struct {
	Share *transport.Share
	Item  *models.Item
	// Permission the local user holds on this share; owners always edit.
	Permission string
}

// PushConflict is returned when the bounded merge-retry loop still lost the
// version race. Merged is the last candidate the engine built, callers can
// retry PushItem with it once the situation calms down.
// errors.Is(err, common.ErrVersionConflict) holds.
type PushConflict struct {
	RemoteVersion int64
	Merged        *models.Item
}

func (c *PushConflict) Error() string {
	return fmt.Sprintf("share conflict unresolved after %d attempts: remote version %d", pushAttempts, c.RemoteVersion)
}

func (c *PushConflict) Is(target error) bool { return target == common.ErrVersionConflict }

type Engine struct {
	api    API
	keys   Keys
	userID string
	logger logging.Logger
}

// NewEngine builds a share sync engine for the given local user identity.
func NewEngine(api API, keys Keys, userID string, logger logging.Logger) *Engine {
	return &Engine{
		api:    api,
		keys:   keys,
		userID: userID,
		logger: logger.With("module", "sharesync"),
	}
}

// Share shares an item with a recipient resolved by email. If the item is
// already shared, the existing DEK is recovered from the owner wrapping and
// re-wrapped for the new recipient, so every recipient decrypts the same
// ciphertext. Otherwise a fresh DEK is minted.
func (e *Engine) Share(ctx context.Context, item *models.Item, recipientEmail, permission string) (*transport.Share, error) {
	masterKey, err := e.keys.MasterKey()
	if err != nil {
		return nil, err
	}
	pair, err := e.keys.EnsureSharingKeyPair(ctx)
	if err != nil {
		return nil, err
	}

	recipient, err := e.api.LookupSharingKey(ctx, recipientEmail)
	if err != nil {
		return nil, err
	}

	dek, existing, err := e.itemDEK(ctx, item.ID, masterKey)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(dek)

	// for an already shared item the registry keeps its stored ciphertext,
	// so resend it unchanged; only a brand new share gets fresh ciphertext
	var data []byte
	if existing != nil {
		data = existing.EncryptedItemData
	} else {
		plaintext, err := item.Encode()
		if err != nil {
			return nil, err
		}
		if data, err = cryptox.Encrypt(dek, plaintext); err != nil {
			return nil, err
		}
	}

	wdekRecipient, err := keywrap.Wrap(dek, recipient.PublicKey, pair.PrivateKey)
	if err != nil {
		return nil, err
	}
	wdekOwner, err := keywrap.WrapForOwner(dek, masterKey)
	if err != nil {
		return nil, err
	}

	return e.api.CreateShare(ctx, transport.CreateShareParams{
		ItemID:                 item.ID,
		RecipientEmail:         recipientEmail,
		Permission:             permission,
		EncryptedItemData:      data,
		WrappedDEKForRecipient: wdekRecipient,
		WrappedDEKForOwner:     wdekOwner,
	})
}

// itemDEK returns the DEK for an item: the existing one when the item is
// already shared, a fresh one otherwise.
func (e *Engine) itemDEK(ctx context.Context, itemID string, masterKey []byte) ([]byte, *transport.Share, error) {
	outgoing, err := e.api.ListOutgoing(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range outgoing {
		if s.ItemID == itemID {
			dek, err := keywrap.UnwrapForOwner(s.WrappedDEKOwner, masterKey)
			if err != nil {
				return nil, nil, err
			}
			return dek, s, nil
		}
	}
	return cryptox.GenerateKey(), nil, nil
}

// Fetch returns all shares where the local user is a recipient, decrypted.
// When no sharing key pair exists locally there is nothing we could ever
// decrypt, so Fetch reports an empty result rather than an error. A share
// whose DEK fails to unwrap is skipped with a warning; one corrupt share
// must not hide the rest.
func (e *Engine) Fetch(ctx context.Context) ([]*SharedItem, error) {
	pair, err := e.keys.EnsureSharingKeyPair(ctx)
	if err != nil {
		if errors.Is(err, common.ErrMissingKeys) {
			return nil, nil
		}
		return nil, err
	}

	shares, err := e.api.ListIncoming(ctx)
	if err != nil {
		return nil, err
	}

	var result []*SharedItem
	for _, share := range shares {
		item, permission, err := e.openIncoming(ctx, share, pair)
		if err != nil {
			e.logger.Warn(ctx, "skipping undecryptable share", "share", share.ID, "error", err.Error())
			continue
		}
		result = append(result, &SharedItem{Share: share, Item: item, Permission: permission})
	}
	return result, nil
}

func (e *Engine) openIncoming(ctx context.Context, share *transport.Share, pair *keywrap.KeyPair) (*models.Item, string, error) {
	rec := myRecipient(share, e.userID)
	if rec == nil {
		return nil, "", common.ErrMissingShareMeta
	}

	ownerKey, err := e.api.LookupSharingKeyByUser(ctx, share.OwnerID)
	if err != nil {
		return nil, "", err
	}

	dek, err := keywrap.Unwrap(rec.WrappedDEK, ownerKey.PublicKey, pair.PrivateKey)
	if err != nil {
		return nil, "", err
	}
	defer common.WipeByteArray(dek)

	plaintext, err := cryptox.Decrypt(dek, share.EncryptedItemData)
	if err != nil {
		return nil, "", err
	}

	item, err := models.DecodeItem(plaintext)
	if err != nil {
		return nil, "", err
	}
	return item, rec.Permission, nil
}

// FetchOwned returns the user's own outgoing shares, decrypted via the owner
// wrapping.
func (e *Engine) FetchOwned(ctx context.Context) ([]*SharedItem, error) {
	masterKey, err := e.keys.MasterKey()
	if err != nil {
		return nil, err
	}

	shares, err := e.api.ListOutgoing(ctx)
	if err != nil {
		return nil, err
	}

	var result []*SharedItem
	for _, share := range shares {
		dek, err := keywrap.UnwrapForOwner(share.WrappedDEKOwner, masterKey)
		if err != nil {
			e.logger.Warn(ctx, "skipping undecryptable share", "share", share.ID, "error", err.Error())
			continue
		}
		plaintext, err := cryptox.Decrypt(dek, share.EncryptedItemData)
		common.WipeByteArray(dek)
		if err != nil {
			e.logger.Warn(ctx, "skipping undecryptable share", "share", share.ID, "error", err.Error())
			continue
		}
		item, err := models.DecodeItem(plaintext)
		if err != nil {
			return nil, err
		}
		result = append(result, &SharedItem{Share: share, Item: item, Permission: common.PermissionEdit})
	}
	return result, nil
}

// PushItem publishes a new plaintext for a shared item. On a version
// conflict it decrypts the current remote ciphertext, merges via MergeItems
// and retries, at most pushAttempts times in total. If the last attempt
// still conflicts, the *PushConflict carries the merged candidate.
func (e *Engine) PushItem(ctx context.Context, shareID string, item *models.Item) (int64, error) {
	share, dek, err := e.findShare(ctx, shareID)
	if err != nil {
		return 0, err
	}
	defer common.WipeByteArray(dek)

	candidate := item
	baseVersion := share.Version

	for attempt := 1; ; attempt++ {
		plaintext, err := candidate.Encode()
		if err != nil {
			return 0, err
		}
		blob, err := cryptox.Encrypt(dek, plaintext)
		if err != nil {
			return 0, err
		}

		version, err := e.api.PushShareData(ctx, shareID, blob, baseVersion+1)
		if err == nil {
			return version, nil
		}

		var vc *common.VersionConflictError
		if !errors.As(err, &vc) {
			return 0, err
		}

		remote, err := e.remoteItem(ctx, shareID, dek)
		if err != nil {
			return 0, err
		}
		candidate = MergeItems(remote, candidate)
		baseVersion = vc.Current

		if attempt >= pushAttempts {
			e.logger.Warn(ctx, "share push still conflicted", "share", shareID, "attempts", attempt)
			return 0, &PushConflict{RemoteVersion: vc.Current, Merged: candidate}
		}
	}
}

// RewrapShares re-wraps the DEK of every incoming share under a freshly
// rotated key pair. The DH agreement is symmetric, so the recipient can
// rebuild the wrapping key from the owner's public key and their own new
// private key without the owner's involvement.
func (e *Engine) RewrapShares(ctx context.Context, old *keywrap.KeyPair) error {
	fresh, err := e.keys.EnsureSharingKeyPair(ctx)
	if err != nil {
		return err
	}

	shares, err := e.api.ListIncoming(ctx)
	if err != nil {
		return err
	}

	for _, share := range shares {
		rec := myRecipient(share, e.userID)
		if rec == nil {
			continue
		}

		ownerKey, err := e.api.LookupSharingKeyByUser(ctx, share.OwnerID)
		if err != nil {
			return err
		}

		dek, err := keywrap.Unwrap(rec.WrappedDEK, ownerKey.PublicKey, old.PrivateKey)
		if err != nil {
			return fmt.Errorf("share %s: %w", share.ID, err)
		}

		rewrapped, err := keywrap.Wrap(dek, ownerKey.PublicKey, fresh.PrivateKey)
		common.WipeByteArray(dek)
		if err != nil {
			return err
		}

		if err := e.api.UpdateRecipientWrapping(ctx, share.ID, rewrapped); err != nil {
			return err
		}
	}
	return nil
}

// findShare locates a share by ID among outgoing then incoming shares and
// recovers its DEK via whichever wrapping the local user holds.
func (e *Engine) findShare(ctx context.Context, shareID string) (*transport.Share, []byte, error) {
	outgoing, err := e.api.ListOutgoing(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range outgoing {
		if s.ID == shareID {
			masterKey, err := e.keys.MasterKey()
			if err != nil {
				return nil, nil, err
			}
			dek, err := keywrap.UnwrapForOwner(s.WrappedDEKOwner, masterKey)
			if err != nil {
				return nil, nil, err
			}
			return s, dek, nil
		}
	}

	incoming, err := e.api.ListIncoming(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range incoming {
		if s.ID == shareID {
			pair, err := e.keys.EnsureSharingKeyPair(ctx)
			if err != nil {
				return nil, nil, err
			}
			rec := myRecipient(s, e.userID)
			if rec == nil {
				return nil, nil, common.ErrMissingShareMeta
			}
			ownerKey, err := e.api.LookupSharingKeyByUser(ctx, s.OwnerID)
			if err != nil {
				return nil, nil, err
			}
			dek, err := keywrap.Unwrap(rec.WrappedDEK, ownerKey.PublicKey, pair.PrivateKey)
			if err != nil {
				return nil, nil, err
			}
			return s, dek, nil
		}
	}

	return nil, nil, common.ErrorNotFound
}

// remoteItem fetches and decrypts the current server-side plaintext of a
// share.
func (e *Engine) remoteItem(ctx context.Context, shareID string, dek []byte) (*models.Item, error) {
	share, err := e.lookupShare(ctx, shareID)
	if err != nil {
		return nil, err
	}
	plaintext, err := cryptox.Decrypt(dek, share.EncryptedItemData)
	if err != nil {
		return nil, err
	}
	return models.DecodeItem(plaintext)
}

func (e *Engine) lookupShare(ctx context.Context, shareID string) (*transport.Share, error) {
	outgoing, err := e.api.ListOutgoing(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range outgoing {
		if s.ID == shareID {
			return s, nil
		}
	}
	incoming, err := e.api.ListIncoming(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range incoming {
		if s.ID == shareID {
			return s, nil
		}
	}
	return nil, common.ErrorNotFound
}

func myRecipient(share *transport.Share, userID string) *transport.Recipient {
	for n := range share.Recipients {
		if share.Recipients[n].UserID == userID {
			return &share.Recipients[n]
		}
	}
	return nil
}
