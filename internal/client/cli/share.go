package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/avoronov/planvault/internal/client/models"
	"github.com/avoronov/planvault/internal/client/sharesync"
	"github.com/avoronov/planvault/internal/common"
	"github.com/google/uuid"
)

func (a *App) ensureShares() error {
	if a.shares == nil {
		return common.ErrorUnauthorized
	}
	return a.ensureReady()
}

// Share wraps an item's key for a recipient and registers the share.
func (a *App) Share(ctx context.Context) error {
	if err := a.ensureShares(); err != nil {
		return err
	}

	itemID, err := getSimpleText(a.reader, "Item id", os.Stdout)
	if err != nil {
		return err
	}
	item := a.doc.FindItem(itemID)
	if item == nil {
		fmt.Println("No such item.")
		return nil
	}

	email, err := getSimpleText(a.reader, "Recipient email", os.Stdout)
	if err != nil {
		return err
	}
	permission, err := getSimpleText(a.reader, "Permission (view/edit)", os.Stdout)
	if err != nil {
		return err
	}
	if permission != common.PermissionView && permission != common.PermissionEdit {
		fmt.Println("Permission must be 'view' or 'edit'.")
		return nil
	}

	share, err := a.shares.Share(ctx, item, email, permission)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			fmt.Println("Recipient has not registered a sharing key.")
			return nil
		}
		return err
	}

	fmt.Printf("Shared as %s (%s for %s).\n", share.ID, permission, email)
	return nil
}

// Shares lists everything shared with and by the local user.
func (a *App) Shares(ctx context.Context) error {
	if err := a.ensureShares(); err != nil {
		return err
	}

	incoming, err := a.shares.Fetch(ctx)
	if err != nil {
		return err
	}
	owned, err := a.shares.FetchOwned(ctx)
	if err != nil {
		return err
	}

	if len(incoming) == 0 && len(owned) == 0 {
		fmt.Println("No shares.")
		return nil
	}

	if len(incoming) > 0 {
		fmt.Println("Shared with me:")
		for _, s := range incoming {
			fmt.Printf("  [%s] %s (%s, v%d)\n", s.Share.ID, s.Item.Title, s.Permission, s.Share.Version)
		}
	}
	if len(owned) > 0 {
		fmt.Println("Shared by me:")
		for _, s := range owned {
			fmt.Printf("  [%s] %s (v%d, %d recipient(s))\n", s.Share.ID, s.Item.Title, s.Share.Version, len(s.Share.Recipients))
		}
	}
	return nil
}

// EditShared appends an entry to a shared item and publishes the change.
func (a *App) EditShared(ctx context.Context) error {
	if err := a.ensureShares(); err != nil {
		return err
	}

	shareID, err := getSimpleText(a.reader, "Share id", os.Stdout)
	if err != nil {
		return err
	}

	shared, err := a.findShared(ctx, shareID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			fmt.Println("No such share.")
			return nil
		}
		return err
	}
	if shared.Permission != common.PermissionEdit {
		fmt.Println("You only have view access to this share.")
		return nil
	}

	text, err := getSimpleText(a.reader, "Entry text", os.Stdout)
	if err != nil {
		return err
	}

	item := shared.Item
	item.Entries = append(item.Entries, models.Entry{
		ID:        uuid.NewString(),
		Text:      text,
		UpdatedAt: time.Now().UTC(),
	})
	item.UpdatedAt = time.Now().UTC()

	version, err := a.shares.PushItem(ctx, shareID, item)
	if err != nil {
		var pc *sharesync.PushConflict
		if errors.As(err, &pc) {
			fmt.Printf("Still conflicted at version %d; run the command again to retry the merged result.\n", pc.RemoteVersion)
			return nil
		}
		if errors.Is(err, common.ErrForbidden) {
			fmt.Println("The server rejected the edit.")
			return nil
		}
		return err
	}

	fmt.Printf("Published at version %d.\n", version)
	return nil
}

func (a *App) findShared(ctx context.Context, shareID string) (*sharesync.SharedItem, error) {
	owned, err := a.shares.FetchOwned(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range owned {
		if s.Share.ID == shareID {
			return s, nil
		}
	}

	incoming, err := a.shares.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range incoming {
		if s.Share.ID == shareID {
			return s, nil
		}
	}
	return nil, common.ErrorNotFound
}

// Rotate replaces the sharing key pair and re-wraps every incoming share
// under the new one.
func (a *App) Rotate(ctx context.Context) error {
	if err := a.ensureShares(); err != nil {
		return err
	}

	old, _, err := a.keyring.RotateSharingKeyPair(ctx)
	if err != nil {
		if errors.Is(err, common.ErrMissingKeys) {
			fmt.Println("No sharing key pair yet; nothing to rotate.")
			return nil
		}
		return err
	}

	if err := a.shares.RewrapShares(ctx, old); err != nil {
		return err
	}

	fmt.Println("Sharing key pair rotated.")
	return nil
}
