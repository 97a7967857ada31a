package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/avoronov/planvault/internal/client/models"
	"github.com/avoronov/planvault/internal/client/repositories/localstate"
	"github.com/avoronov/planvault/internal/common"
)

// getSimpleText and getPassphrase are indirections used to facilitate
// testing. They point to interactive input helpers and can be swapped in
// tests.
var getSimpleText = GetSimpleText
var getPassphrase = GetPassphrase

// Token stores the bearer token obtained from the auth service and derives
// the local identity from it.
func (a *App) Token(ctx context.Context, args []string) error {
	var token string
	if len(args) > 0 {
		token = args[0]
	} else {
		t, err := getSimpleText(a.reader, "Paste access token", os.Stdout)
		if err != nil {
			return err
		}
		token = t
	}

	if !a.adoptToken(token) {
		return common.ErrInvalidToken
	}
	if err := a.state.Set(ctx, localstate.KeyAccessToken, []byte(token)); err != nil {
		return err
	}

	fmt.Printf("Hello, %s!\n", a.email)
	return nil
}

// Unlock derives the master key from the passphrase and loads the locally
// cached workspace.
func (a *App) Unlock(ctx context.Context) error {
	passphrase, err := getPassphrase(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(passphrase)

	if err := a.keyring.Unlock(ctx, passphrase); err != nil {
		if errors.Is(err, common.ErrAuthenticationFailure) {
			fmt.Println("Wrong passphrase.")
			return nil
		}
		return err
	}

	doc, version, err := a.workspace.Load(ctx)
	if err != nil {
		return err
	}
	a.doc = doc
	a.version = version

	fmt.Printf("Unlocked. %d item(s) at version %d. Run 'sync' to fetch updates.\n", len(doc.Items), version)
	return nil
}

// Lock wipes key material and the decrypted working copy from memory.
func (a *App) Lock(ctx context.Context) error {
	a.keyring.Clear()
	a.doc = nil
	a.version = 0
	fmt.Println("Locked.")
	return nil
}

func (a *App) ensureReady() error {
	if !a.isUnlocked() {
		return common.ErrMissingKeys
	}
	if a.doc == nil {
		a.doc = &models.Workspace{}
	}
	return nil
}
