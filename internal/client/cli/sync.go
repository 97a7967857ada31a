package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/avoronov/planvault/internal/client/sharesync"
	"github.com/avoronov/planvault/internal/client/syncengine"
)

// Sync publishes the working copy of the workspace. When nothing was pushed
// from this device yet it first pulls the remote state. A version conflict
// is resolved by structural merge and one explicit resolve push.
func (a *App) Sync(ctx context.Context) error {
	if err := a.ensureReady(); err != nil {
		return err
	}

	if a.version == 0 && len(a.doc.Items) == 0 {
		doc, version, err := a.workspace.Pull(ctx)
		if err != nil {
			return err
		}
		a.doc = doc
		a.version = version
		fmt.Printf("Pulled %d item(s) at version %d.\n", len(doc.Items), version)
		return nil
	}

	version, err := a.workspace.Push(ctx, a.doc, a.version)
	if err == nil {
		a.version = version
		fmt.Printf("Synced at version %d.\n", version)
		return nil
	}

	var conflict *syncengine.Conflict
	if !errors.As(err, &conflict) {
		return err
	}

	fmt.Printf("Conflict: server is at version %d. Merging...\n", conflict.RemoteVersion)
	merged := sharesync.MergeWorkspaces(conflict.Remote, a.doc)

	version, err = a.workspace.Resolve(ctx, merged, conflict.RemoteVersion)
	if err != nil {
		return err
	}
	a.doc = merged
	a.version = version
	fmt.Printf("Merged and synced at version %d.\n", version)
	return nil
}
