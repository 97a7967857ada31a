// Package cli implements the interactive planvault client.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"

	"github.com/avoronov/planvault/internal/client/config"
	"github.com/avoronov/planvault/internal/client/keystore"
	"github.com/avoronov/planvault/internal/client/localdb"
	"github.com/avoronov/planvault/internal/client/models"
	"github.com/avoronov/planvault/internal/client/repositories/localstate"
	"github.com/avoronov/planvault/internal/client/sharesync"
	"github.com/avoronov/planvault/internal/client/syncengine"
	"github.com/avoronov/planvault/internal/client/transport"
	"github.com/avoronov/planvault/internal/logging"
	"github.com/avoronov/planvault/internal/server/auth"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	state   localstate.Repository
	api     *transport.RestClient
	keyring *keystore.Keyring

	workspace *syncengine.Engine
	shares    *sharesync.Engine

	userID string
	email  string
	reader *bufio.Reader

	// working copy of the decrypted workspace
	doc     *models.Workspace
	version int64
}

func NewApp(c *config.Config) (*App, error) {

	ctx := context.Background()

	logger := logging.NewText(os.Stderr, slog.LevelWarn)

	db, state, err := localdb.InitDatabase(ctx, c.LocalDBPath)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	api := transport.NewRestClient(c.ServerEndpointAddr, c.RequestTimeout)
	keyring := keystore.NewKeyring(state, api)

	app := &App{
		config:    c,
		logger:    logger,
		db:        db,
		state:     state,
		api:       api,
		keyring:   keyring,
		workspace: syncengine.NewEngine(api, keyring, state, logger),
		reader:    bufio.NewReader(os.Stdin),
	}

	// pick up a token saved by a previous run
	if saved, err := state.Get(ctx, localstate.KeyAccessToken); err == nil && saved != nil {
		app.adoptToken(string(saved))
	}

	return app, nil
}

// adoptToken activates a bearer token and derives the local identity from
// its (unverified) claims.
func (a *App) adoptToken(token string) bool {
	claims, err := auth.ExtractClaims(token)
	if err != nil {
		log.Printf("ignoring invalid token: %s", err.Error())
		return false
	}

	a.api.SetToken(token)
	a.userID = claims.UserID
	a.email = claims.Email
	a.shares = sharesync.NewEngine(a.api, a.keyring, a.userID, a.logger)
	return true
}

func (a *App) isUnlocked() bool {
	_, err := a.keyring.MasterKey()
	return err == nil
}

func (a *App) Run(ctx context.Context) {
	defer a.db.Close()
	a.Root(ctx)
}
